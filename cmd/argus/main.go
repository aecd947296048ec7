package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"argus/internal/config"
	"argus/internal/db"
	"argus/internal/domain"
	"argus/internal/eligibility"
	"argus/internal/migrate"
	"argus/internal/nav"
	"argus/internal/notify"
	"argus/internal/server"
	"argus/internal/store"
	"argus/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "argus",
	Short: "Argus CLI",
	Long: `Argus runs the mandate workflow for a private-investigation marketplace.
Core concepts:
- Workspace: your .argus directory holding the sqlite database; argus.yml holds config.
- Agency: posts mandates and owns them; only the agency owner moves a mandate.
- Mandate: an investigation job; statuses go open -> in-progress -> completed
  (cancelled/expired are exits, reopen brings completed back).
- Candidature: an investigator's application; interested -> accepted or rejected,
  with unreject to restore a rejected one.
- Assignment: accepting a candidature assigns its investigator; direct assignment
  skips the candidature round. Eligibility rules gate both paths.
- Event log: diary of transitions, view with 'argus log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ARGUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "acting user identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(agencyCmd())
	rootCmd.AddCommand(investigatorCmd())
	rootCmd.AddCommand(mandateCmd())
	rootCmd.AddCommand(candidatureCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default argus.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	})
	return cfg
}

func agencyCmd() *cobra.Command {
	agency := &cobra.Command{Use: "agency", Short: "Manage agencies"}
	agency.AddCommand(agencyCreateCmd())
	agency.AddCommand(agencyShowCmd())
	agency.AddCommand(agencyVerifyCmd())
	return agency
}

func agencyCreateCmd() *cobra.Command {
	var name, license string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an agency owned by the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				a := domain.Agency{
					ID:            uuid.New().String(),
					OwnerUserID:   viper.GetString("user-id"),
					Name:          name,
					LicenseNumber: license,
				}
				if err := s.InsertAgency(ctx, a); err != nil {
					return err
				}
				created, err := s.GetAgency(ctx, a.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "agency name")
	cmd.Flags().StringVar(&license, "license", "", "license number")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func agencyShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an agency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				a, err := s.GetAgency(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func agencyVerifyCmd() *cobra.Command {
	var revoke bool
	cmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Mark an agency verified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				return s.SetAgencyVerified(ctx, args[0], !revoke)
			})
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove verification instead")
	return cmd
}

func investigatorCmd() *cobra.Command {
	inv := &cobra.Command{Use: "investigator", Short: "Manage investigators"}
	inv.AddCommand(investigatorCreateCmd())
	inv.AddCommand(investigatorShowCmd())
	inv.AddCommand(investigatorVerifyCmd())
	inv.AddCommand(investigatorSuspendCmd())
	return inv
}

func investigatorCreateCmd() *cobra.Command {
	var name, license, userID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an investigator profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			if userID == "" {
				userID = viper.GetString("user-id")
			}
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				inv := domain.Investigator{
					ID:            uuid.New().String(),
					UserID:        userID,
					Name:          name,
					LicenseNumber: license,
				}
				if err := s.InsertInvestigator(ctx, inv); err != nil {
					return err
				}
				created, err := s.GetInvestigator(ctx, inv.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "investigator name")
	cmd.Flags().StringVar(&license, "license", "", "license number")
	cmd.Flags().StringVar(&userID, "user", "", "backing user id (defaults to --user-id)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func investigatorShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an investigator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				inv, err := s.GetInvestigator(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(inv)
			})
		},
	}
	return cmd
}

func investigatorVerifyCmd() *cobra.Command {
	var revoke bool
	cmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Mark an investigator verified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				return s.SetInvestigatorVerified(ctx, args[0], !revoke)
			})
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove verification instead")
	return cmd
}

func investigatorSuspendCmd() *cobra.Command {
	var lift bool
	cmd := &cobra.Command{
		Use:   "suspend <id>",
		Short: "Suspend an investigator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				return s.SetInvestigatorSuspended(ctx, args[0], !lift)
			})
		},
	}
	cmd.Flags().BoolVar(&lift, "lift", false, "lift the suspension instead")
	return cmd
}

func mandateCmd() *cobra.Command {
	mandate := &cobra.Command{
		Use:   "mandate",
		Short: "Manage mandates",
		Long:  "Mandates are investigation jobs. Agencies post them, investigators apply, and the owner accepts a candidature or assigns directly. Statuses go open -> in-progress -> completed.",
	}
	mandate.AddCommand(mandateCreateCmd())
	mandate.AddCommand(mandateListCmd())
	mandate.AddCommand(mandateShowCmd())
	mandate.AddCommand(mandateAcceptCmd())
	mandate.AddCommand(mandateRejectCmd())
	mandate.AddCommand(mandateUnrejectCmd())
	mandate.AddCommand(mandateAssignCmd())
	mandate.AddCommand(mandateUnassignCmd())
	mandate.AddCommand(mandateCompleteCmd())
	mandate.AddCommand(mandateReopenCmd())
	mandate.AddCommand(mandateExpireCmd())
	return mandate
}

func mandateCreateCmd() *cobra.Command {
	var agencyID, title, description, city, dateRequired, assignmentType string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mandate",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				if agencyID == "" {
					a, err := s.AgencyForOwner(ctx, viper.GetString("user-id"))
					if err != nil {
						return fmt.Errorf("no agency for user %s; pass --agency", viper.GetString("user-id"))
					}
					agencyID = a.ID
				}
				m := domain.Mandate{
					ID:             uuid.New().String(),
					AgencyID:       agencyID,
					Title:          title,
					Description:    description,
					City:           city,
					DateRequired:   dateRequired,
					AssignmentType: assignmentType,
				}
				if err := s.InsertMandate(ctx, m); err != nil {
					return err
				}
				created, err := s.GetMandate(ctx, m.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&agencyID, "agency", "", "agency id (defaults to the acting user's agency)")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&city, "city", "", "city")
	cmd.Flags().StringVar(&dateRequired, "date-required", "", "required-by date (RFC 3339)")
	cmd.Flags().StringVar(&assignmentType, "assignment-type", "public", "assignment type (public, direct)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func mandateListCmd() *cobra.Command {
	var f store.MandateFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List mandates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				mandates, err := s.ListMandates(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(mandates)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Assigned To", "City"})
				for _, m := range mandates {
					assigned := ""
					if m.AssignedTo != nil {
						assigned = *m.AssignedTo
					}
					tw.AppendRow(table.Row{m.ID, m.Title, m.Status, assigned, m.City})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.AgencyID, "agency", "", "agency id filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.AssignedTo, "assigned-to", "", "assigned investigator filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func mandateShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a mandate and its candidatures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				m, err := s.GetMandate(ctx, args[0])
				if err != nil {
					return err
				}
				candidatures, err := s.ListCandidatures(ctx, m.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"mandate":      m,
					"candidatures": candidatures,
				})
			})
		},
	}
	return cmd
}

func mandateAcceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept <mandate-id> <candidature-id>",
		Short: "Accept a candidature and assign its investigator",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s store.Store, wf workflow.Service) error {
				c, err := s.GetCandidature(ctx, args[1])
				if err != nil {
					return err
				}
				res, err := wf.AcceptCandidature(ctx, caller(), c.ID, args[0], c.InvestigatorID)
				if err != nil {
					return err
				}
				if res.RedirectHint != "" && !viper.GetBool("json") {
					fmt.Println("next:", res.RedirectHint)
				}
				return showMandate(ctx, s, args[0])
			})
		},
	}
	return cmd
}

func mandateRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <mandate-id> <candidature-id>",
		Short: "Reject a candidature",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s store.Store, wf workflow.Service) error {
				if err := wf.RejectCandidature(ctx, caller(), args[1]); err != nil {
					return err
				}
				return showMandate(ctx, s, args[0])
			})
		},
	}
	return cmd
}

func mandateUnrejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unreject <mandate-id> <candidature-id>",
		Short: "Restore a rejected candidature",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s store.Store, wf workflow.Service) error {
				if err := wf.UnrejectCandidature(ctx, caller(), args[1]); err != nil {
					return err
				}
				return showMandate(ctx, s, args[0])
			})
		},
	}
	return cmd
}

func mandateAssignCmd() *cobra.Command {
	var investigatorID string
	cmd := &cobra.Command{
		Use:   "assign <mandate-id>",
		Short: "Assign an investigator directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if investigatorID == "" {
				return fmt.Errorf("--investigator required")
			}
			return withService(cmd.Context(), func(ctx context.Context, s store.Store, wf workflow.Service) error {
				if err := wf.DirectAssignInvestigator(ctx, caller(), args[0], investigatorID); err != nil {
					return err
				}
				return showMandate(ctx, s, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&investigatorID, "investigator", "", "investigator id")
	_ = cmd.MarkFlagRequired("investigator")
	return cmd
}

func mandateUnassignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unassign <mandate-id>",
		Short: "Unassign the current investigator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s store.Store, wf workflow.Service) error {
				if err := wf.UnassignInvestigator(ctx, caller(), args[0]); err != nil {
					return err
				}
				return showMandate(ctx, s, args[0])
			})
		},
	}
	return cmd
}

func mandateCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <mandate-id>",
		Short: "Complete a mandate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s store.Store, wf workflow.Service) error {
				res, err := wf.CompleteMandate(ctx, caller(), args[0])
				if err != nil {
					return err
				}
				if res.RedirectHint != "" && !viper.GetBool("json") {
					fmt.Println("next:", res.RedirectHint)
				}
				return showMandate(ctx, s, args[0])
			})
		},
	}
	return cmd
}

func mandateReopenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reopen <mandate-id>",
		Short: "Reopen a completed mandate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s store.Store, wf workflow.Service) error {
				if err := wf.ReopenMandate(ctx, caller(), args[0]); err != nil {
					return err
				}
				return showMandate(ctx, s, args[0])
			})
		},
	}
	return cmd
}

func mandateExpireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Expire open mandates past their required date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				n, err := s.ExpireOverdue(ctx, time.Now().UTC())
				if err != nil {
					return err
				}
				fmt.Printf("Expired %d mandate(s)\n", n)
				return nil
			})
		},
	}
	return cmd
}

func candidatureCmd() *cobra.Command {
	cand := &cobra.Command{Use: "candidature", Short: "Manage candidatures"}
	cand.AddCommand(candidatureApplyCmd())
	return cand
}

func candidatureApplyCmd() *cobra.Command {
	var investigatorID, message string
	cmd := &cobra.Command{
		Use:   "apply <mandate-id>",
		Short: "Apply to a mandate as an investigator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if investigatorID == "" {
				return fmt.Errorf("--investigator required")
			}
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				if _, err := s.GetMandate(ctx, args[0]); err != nil {
					return err
				}
				c := domain.Candidature{
					ID:             uuid.New().String(),
					MandateID:      args[0],
					InvestigatorID: investigatorID,
					Message:        message,
				}
				if err := s.InsertCandidature(ctx, c); err != nil {
					return err
				}
				created, err := s.GetCandidature(ctx, c.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&investigatorID, "investigator", "", "investigator id")
	cmd.Flags().StringVar(&message, "message", "", "application message")
	_ = cmd.MarkFlagRequired("investigator")
	return cmd
}

func notificationCmd() *cobra.Command {
	notif := &cobra.Command{Use: "notifications", Short: "Manage notifications"}
	notif.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the acting user's notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				items, err := s.ListNotifications(ctx, viper.GetString("user-id"), 50)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	notif.AddCommand(&cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				return s.MarkNotificationRead(ctx, args[0])
			})
		},
	})
	return notif
}

func keysCmd() *cobra.Command {
	keys := &cobra.Command{Use: "keys", Short: "Manage API keys"}
	keys.AddCommand(keysCreateCmd())
	keys.AddCommand(keysListCmd())
	keys.AddCommand(keysDeleteCmd())
	return keys
}

func keysCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := make([]byte, 24)
			if _, err := rand.Read(raw); err != nil {
				return err
			}
			secret := "argus_" + hex.EncodeToString(raw)
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				key := domain.APIKey{
					ID:      uuid.New().String(),
					UserID:  viper.GetString("user-id"),
					Name:    name,
					KeyHash: store.HashAPIKey(secret),
				}
				if err := s.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// The secret is shown once; only its hash is stored.
				fmt.Printf("Key %s created. Secret (save it now): %s\n", key.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func keysListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the acting user's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				items, err := s.ListAPIKeys(ctx, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func keysDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				return s.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				events, err := s.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			s := store.Store{DB: conn}
			wf := buildWorkflow(s, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("ARGUS_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("ARGUS_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Workflow: wf, Store: s, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(s, cfg.Webhooks)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Argus API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func caller() workflow.Caller {
	return workflow.Caller{UserID: viper.GetString("user-id")}
}

func buildWorkflow(s store.Store, cfg *config.Config) workflow.Service {
	var sender workflow.NotificationSender = notify.StoreSender{Store: s}
	if cfg != nil && !cfg.Notifications.Enabled {
		sender = notify.Discard{}
	}
	var routes config.RoutesConfig
	if cfg != nil {
		routes = cfg.Routes
	}
	return workflow.Service{
		Store:       s,
		Eligibility: eligibility.Checker{Store: s, Config: cfg},
		Notifier:    sender,
		Nav:         nav.Resolver{Routes: routes},
	}
}

func withStore(ctx context.Context, fn func(context.Context, store.Store) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, store.Store{DB: conn})
}

func withService(ctx context.Context, fn func(context.Context, store.Store, workflow.Service) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	s := store.Store{DB: conn}
	return fn(ctx, s, buildWorkflow(s, cfg))
}

func showMandate(ctx context.Context, s store.Store, id string) error {
	m, err := s.GetMandate(ctx, id)
	if err != nil {
		return err
	}
	return printJSONOrTable(m)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	return renderTable(os.Stdout, v)
}

// renderTable prints v as a go-pretty table: one row per element for slices,
// a field/value table for single objects. Nested values render as compact
// JSON.
func renderTable(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	switch val := generic.(type) {
	case []any:
		if len(val) == 0 {
			fmt.Fprintln(w, "(none)")
			return nil
		}
		first, ok := val[0].(map[string]any)
		if !ok {
			for _, item := range val {
				fmt.Fprintln(w, cellValue(item))
			}
			return nil
		}
		cols := sortedKeys(first)
		header := table.Row{}
		for _, c := range cols {
			header = append(header, c)
		}
		tw.AppendHeader(header)
		for _, item := range val {
			obj, _ := item.(map[string]any)
			row := table.Row{}
			for _, c := range cols {
				row = append(row, cellValue(obj[c]))
			}
			tw.AppendRow(row)
		}
	case map[string]any:
		tw.AppendHeader(table.Row{"Field", "Value"})
		for _, k := range sortedKeys(val) {
			tw.AppendRow(table.Row{k, cellValue(val[k])})
		}
	default:
		fmt.Fprintln(w, cellValue(val))
		return nil
	}
	tw.Render()
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cellValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
