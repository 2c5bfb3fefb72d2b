package session

import "fmt"

type Link struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// NavigationFor returns the dashboard links shown to role.
func NavigationFor(role Role) []Link {
	dashboard := Link{Name: "Dashboard", Path: fmt.Sprintf("/dashboard/%s", role)}
	switch role {
	case RoleDoctor:
		return []Link{
			dashboard,
			{Name: "Detection", Path: "/detection"},
			{Name: "Patients", Path: "/dashboard/doctor/patients"},
			{Name: "Test Results", Path: "/dashboard/doctor/test-results"},
			{Name: "Reports", Path: "/dashboard/doctor/reports"},
		}
	case RolePatient:
		return []Link{
			dashboard,
			{Name: "My Results", Path: "/dashboard/patient/results"},
			{Name: "My Reports", Path: "/dashboard/patient/reports"},
			{Name: "Appointments", Path: "/dashboard/patient/appointments"},
		}
	case RoleAdmin:
		return []Link{
			dashboard,
			{Name: "Detection", Path: "/detection"},
			{Name: "Users", Path: "/dashboard/admin/users"},
			{Name: "Analytics", Path: "/dashboard/admin/analytics"},
			{Name: "System Logs", Path: "/dashboard/admin/logs"},
		}
	}
	return []Link{dashboard}
}
