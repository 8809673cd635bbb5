package cli

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/service"
)

func (c *CLI) tokenCmd() *cobra.Command {
	var (
		req service.IssueTokenRequest
		ttl time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token signed with JWT_SECRET",
		Long: `Mint a bearer token for local environments and smoke tests.

TEACHER tokens need --teacher and STUDENT tokens need --group; the API
restricts those roles to their own timetable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			role, ok := models.ParseUserRole(string(req.Role))
			if !ok {
				return fmt.Errorf("unknown role %q", req.Role)
			}
			req.Role = role

			auth := service.NewAuthService(validator.New(), c.logger, service.AuthConfig{
				AccessTokenSecret: c.cfg.JWT.Secret,
				AccessTokenExpiry: ttl,
			})
			token, expiresAt, err := auth.IssueToken(req)
			if err != nil {
				return fmt.Errorf("issuing token: %s", describeError(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintln(cmd.ErrOrStderr(), colorMuted.Sprintf("expires %s", expiresAt.Format(time.RFC3339)))
			return nil
		},
	}

	cmd.Flags().StringVar(&req.UserID, "user", "", "Subject user id")
	cmd.Flags().StringVar((*string)(&req.Role), "role", string(models.RoleAdmin), "ADMIN, DEPARTMENT_HEAD, TEACHER or STUDENT")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email claim")
	cmd.Flags().StringVar(&req.TeacherID, "teacher", "", "Teacher id for TEACHER tokens")
	cmd.Flags().StringVar(&req.GroupID, "group", "", "Group id for STUDENT tokens")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
