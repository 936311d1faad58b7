package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"edustatus/internal/apperr"
	"edustatus/internal/auth"
	"edustatus/internal/config"
	"edustatus/internal/derived"
	"edustatus/internal/queue"
	"edustatus/internal/report"
	"edustatus/internal/store"
	"edustatus/internal/submission"
)

type mediumOpener func(ctx context.Context, cfg store.BackendConfig) (store.Medium, error)

// portal owns the services for one CLI invocation.
type portal struct {
	cfg         config.App
	open        mediumOpener
	trackerOpts []submission.Option

	st         *store.Store
	auth       *auth.Service
	tracker    *submission.Tracker
	derived    *derived.Generator
	closeQueue func() error
}

func newPortal(cfg config.App, open mediumOpener, opts ...submission.Option) *portal {
	return &portal{cfg: cfg, open: open, trackerOpts: opts}
}

func (p *portal) start(ctx context.Context) error {
	if p.st != nil {
		return nil
	}
	medium, err := p.open(ctx, store.BackendConfig{
		Backend:     p.cfg.StoreBackend,
		SQLitePath:  p.cfg.SQLitePath,
		DatabaseURL: p.cfg.DatabaseURL,
		RedisAddr:   p.cfg.RedisAddr,
		RedisPrefix: p.cfg.RedisPrefix,
	})
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, medium)
	if err != nil {
		_ = medium.Close()
		return err
	}
	p.st = st

	if p.auth, err = auth.NewService(ctx, st); err != nil {
		return err
	}

	opts := p.trackerOpts
	// Events only leave the process through a shared queue.
	if p.cfg.QueueBackend == "redis" {
		q, closeQueue, err := queue.Open(ctx, p.cfg.QueueBackend, p.cfg.RedisAddr, p.cfg.QueueKey)
		if err != nil {
			return err
		}
		p.closeQueue = closeQueue
		opts = append(opts, submission.WithQueue(q))
	}
	p.tracker = submission.NewTracker(st, opts...)
	p.derived = derived.NewGenerator(st, nil)
	return nil
}

func (p *portal) close(ctx context.Context) error {
	var errs []error
	if p.closeQueue != nil {
		errs = append(errs, p.closeQueue())
		p.closeQueue = nil
	}
	if p.st != nil {
		errs = append(errs, p.st.Close(ctx))
		p.st = nil
	}
	return errors.Join(errs...)
}

func rootCmd(p *portal) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "portal",
		Short:         "Student services portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return p.start(cmd.Context())
		},
	}
	cmd.PersistentFlags().StringVar(&p.cfg.StoreBackend, "store", p.cfg.StoreBackend, "Storage backend (sqlite, postgres, redis, memory)")
	cmd.PersistentFlags().StringVar(&p.cfg.SQLitePath, "sqlite-path", p.cfg.SQLitePath, "SQLite database file")

	cmd.AddCommand(
		signupCmd(p),
		loginCmd(p),
		logoutCmd(p),
		whoamiCmd(p),
		noDuesCmd(p),
		bonafideCmd(p),
		submissionsCmd(p),
		feesCmd(p),
		attendanceCmd(p),
		exportCmd(p),
	)
	return cmd
}

// ---------- Auth ----------

func signupCmd(p *portal) *cobra.Command {
	var data auth.SignupData
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a student account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := p.auth.Signup(cmd.Context(), data)
			if err != nil {
				return err
			}
			return printJSON(cmd, sess)
		},
	}
	f := cmd.Flags()
	f.StringVar(&data.Name, "name", "", "Full name")
	f.StringVar(&data.Email, "email", "", "Email address")
	f.StringVar(&data.Password, "password", "", "Password (min 6 characters)")
	f.StringVar(&data.RollNo, "roll-no", "", "Roll number, e.g. CB2201")
	f.StringVar(&data.Department, "department", "", "Department")
	f.IntVar(&data.Year, "year", 0, "Year of study")
	f.IntVar(&data.Semester, "semester", 0, "Semester")
	return cmd
}

func loginCmd(p *portal) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := p.auth.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			return printJSON(cmd, sess)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	return cmd
}

func logoutCmd(p *portal) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := p.auth.Logout(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return err
		},
	}
}

func whoamiCmd(p *portal) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := p.auth.RequireSession()
			if err != nil {
				return err
			}
			return printJSON(cmd, sess)
		},
	}
}

// ---------- Submissions ----------

func noDuesCmd(p *portal) *cobra.Command {
	var form submission.NoDuesForm
	cmd := &cobra.Command{
		Use:   "no-dues",
		Short: "Request a No Dues certificate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := p.auth.RequireSession()
			if err != nil {
				return err
			}
			if form.RollNo == "" {
				form.RollNo = sess.RollNo
			}
			if err := form.Validate(sess); err != nil {
				return err
			}
			sub, err := p.tracker.Submit(cmd.Context(), sess.ID, submission.TypeNoDues, form.Details())
			if err != nil {
				return err
			}
			return printJSON(cmd, sub)
		},
	}
	f := cmd.Flags()
	f.StringVar(&form.RollNo, "roll-no", "", "Roll number (defaults to the session's)")
	f.StringVar(&form.Department, "department", "", "Department")
	f.IntVar(&form.Year, "year", 3, "Year of study")
	f.IntVar(&form.Semester, "semester", 5, "Semester")
	f.StringVar(&form.Reason, "reason", "", "Reason for the request")
	return cmd
}

func bonafideCmd(p *portal) *cobra.Command {
	var form submission.BonafideForm
	cmd := &cobra.Command{
		Use:   "bonafide",
		Short: "Request a Bonafide certificate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := p.auth.RequireSession()
			if err != nil {
				return err
			}
			if form.RollNo == "" {
				form.RollNo = sess.RollNo
			}
			if err := form.Validate(sess); err != nil {
				return err
			}
			sub, err := p.tracker.Submit(cmd.Context(), sess.ID, submission.TypeBonafide, form.Details())
			if err != nil {
				return err
			}
			return printJSON(cmd, sub)
		},
	}
	cmd.Flags().StringVar(&form.RollNo, "roll-no", "", "Roll number (defaults to the session's)")
	cmd.Flags().StringVar(&form.Purpose, "purpose", "", "Purpose of the certificate")
	return cmd
}

func submissionsCmd(p *portal) *cobra.Command {
	return &cobra.Command{
		Use:   "submissions",
		Short: "List your submissions (all of them for the admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := p.auth.RequireSession()
			if err != nil {
				return err
			}
			var subs []submission.Submission
			if sess.IsAdmin() {
				subs, err = p.tracker.ListAll(cmd.Context())
			} else {
				subs, err = p.tracker.ListForUser(cmd.Context(), sess.ID)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, subs)
		},
	}
}

// ---------- Derived data ----------

func feesCmd(p *portal) *cobra.Command {
	return &cobra.Command{
		Use:   "fees",
		Short: "Show the fee balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := p.studentData(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, data.Fees)
		},
	}
}

func attendanceCmd(p *portal) *cobra.Command {
	return &cobra.Command{
		Use:   "attendance",
		Short: "Show the attendance record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := p.studentData(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, data.Attendance)
		},
	}
}

func (p *portal) studentData(ctx context.Context) (derived.StudentData, error) {
	sess, err := p.auth.RequireSession()
	if err != nil {
		return derived.StudentData{}, err
	}
	return p.derived.GetOrCreate(ctx, sess.ID)
}

// ---------- Admin ----------

func exportCmd(p *portal) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every submission to an XLSX file (admin only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := p.auth.RequireSession()
			if err != nil {
				return err
			}
			if !sess.IsAdmin() {
				return apperr.ErrForbidden
			}
			subs, err := p.tracker.ListAll(ctx)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			err = report.WriteSubmissions(f, subs, func(userID string) (report.Student, bool) {
				acc, ok, err := p.auth.Account(ctx, userID)
				if err != nil || !ok {
					return report.Student{}, false
				}
				return report.Student{Name: acc.Name, RollNo: acc.RollNo}, true
			})
			if cerr := f.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("close %s: %w", out, cerr)
			}
			if err != nil {
				_ = os.Remove(out)
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d submissions to %s\n", len(subs), out)
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "submissions.xlsx", "Output file")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
