package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/malariadx/malariadx/internal/config"
	"github.com/malariadx/malariadx/internal/detection"
	"github.com/malariadx/malariadx/internal/intake"
	"github.com/malariadx/malariadx/internal/platform/auth"
	"github.com/malariadx/malariadx/internal/platform/db"
	"github.com/malariadx/malariadx/internal/reportpdf"
	"github.com/malariadx/malariadx/internal/session"
)

type detectOptions struct {
	image     string
	patientID string
	email     string
	password  string
	useTTA    bool
	gradCAM   bool
	reportDir string
}

// detectCmd runs one image through the same detection flow the API uses,
// signed in as a doctor.
func detectCmd() *cobra.Command {
	var opts detectOptions
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Analyze a blood-smear image and save the test result",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.image == "" || opts.patientID == "" {
				return fmt.Errorf("--image and --patient are required")
			}
			if opts.email == "" {
				opts.email = os.Getenv("MALARIADX_EMAIL")
			}
			if opts.password == "" {
				opts.password = os.Getenv("MALARIADX_PASSWORD")
			}
			return runDetect(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.image, "image", "", "Path to the smear image")
	cmd.Flags().StringVar(&opts.patientID, "patient", "", "Patient ID the test belongs to")
	cmd.Flags().StringVar(&opts.email, "email", "", "Doctor email (or MALARIADX_EMAIL)")
	cmd.Flags().StringVar(&opts.password, "password", "", "Doctor password (or MALARIADX_PASSWORD)")
	cmd.Flags().BoolVar(&opts.useTTA, "tta", false, "Use test-time augmentation")
	cmd.Flags().BoolVar(&opts.gradCAM, "gradcam", false, "Request a Grad-CAM overlay")
	cmd.Flags().StringVar(&opts.reportDir, "report-dir", "", "Write the PDF report into this directory")
	return cmd
}

func runDetect(cmd *cobra.Command, opts detectOptions) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	blobs, err := newBlobStore(cfg)
	if err != nil {
		return err
	}
	key, _, err := resolveSigningKey(cfg)
	if err != nil {
		return err
	}
	issuer := auth.NewIssuer(key, cfg.AuthIssuer, cfg.AuthAudience, cfg.AuthTokenTTL)
	svc := newServices(pool, blobs, cfg, issuer, nil, logger)

	provider := session.NewProvider(svc.identity)
	sess, err := provider.Login(ctx, opts.email, opts.password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	defer func() {
		if err := provider.Logout(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("sign out failed")
		}
	}()
	if !sess.IsStaff() {
		return fmt.Errorf("sign in as a doctor or admin to run detections")
	}

	client := newInferenceClient(cfg, provider, nil, logger)
	orch := newOrchestrator(cfg, client, svc, blobs, logger)
	registry := detection.NewRegistry(cfg.DetectionWorkspaceTTL)
	ws := registry.Create(sess.UserID)
	defer registry.Delete(ws.ID)

	f, err := intake.FromPath(opts.image)
	if err != nil {
		return err
	}
	if _, err := orch.Upload(ws, f); err != nil {
		return err
	}

	ctx = session.WithSession(ctx, sess)
	_, analyzeErr := orch.Analyze(ctx, ws, detection.Request{
		PatientID:  opts.patientID,
		UseTTA:     opts.useTTA,
		UseGradCAM: opts.gradCAM,
	})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(orch.Snapshot(ws)); err != nil {
		return err
	}
	if analyzeErr != nil {
		return analyzeErr
	}

	if opts.reportDir == "" {
		return nil
	}
	doctor := reportpdf.DoctorProfile{FullName: sess.Profile.Name, Hospital: sess.Profile.Hospital}
	d, doc, err := orch.Report(ctx, ws, doctor)
	if err != nil {
		return err
	}
	path := filepath.Join(opts.reportDir, reportpdf.DoctorFileName(d))
	if err := writeReport(path, doc); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", path)
	return nil
}

// writeReport creates path and writes doc into it. A failed close is
// reported, and a partial file is removed.
func writeReport(path string, doc io.WriterTo) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close report: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	if _, err := doc.WriteTo(out); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
