package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fivetwenty-io/lxd-client/internal/constants"
	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// NewTrustCommand creates the trust store command group.
func NewTrustCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "trust",
		Aliases: []string{"certificates"},
		Short:   "Manage trusted client certificates",
	}

	cmd.AddCommand(newTrustListCommand())
	cmd.AddCommand(newTrustAddCommand())
	cmd.AddCommand(newTrustRemoveCommand())

	return cmd
}

func newTrustListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List trusted certificates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				certificates, err := client.Certificates().List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list certificates: %w", err)
				}

				return renderOutput(certificates, func() error {
					rows := make([][]string, 0, len(certificates))
					for _, certificate := range certificates {
						rows = append(rows, []string{
							shortFingerprint(certificate.Fingerprint),
							valueOrNA(certificate.Name),
							certificate.Type,
							strconv.FormatBool(certificate.Restricted),
							valueOrNA(strings.Join(certificate.Projects, ",")),
						})
					}

					return renderTable([]string{"Fingerprint", "Name", "Type", "Restricted", "Projects"}, rows)
				})
			})
		},
	}
}

func newTrustAddCommand() *cobra.Command {
	var (
		certFile   string
		name       string
		password   string
		restricted bool
		projects   []string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a certificate to the trust store",
		Long: `Add a certificate to the trust store.

With --cert the given certificate is added by an already trusted client.
Without it the client's own certificate is submitted together with the
server trust password, which is prompted for when not given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			request := &lxd.CertificatesPost{
				Name:       name,
				Type:       "client",
				Restricted: restricted,
				Projects:   projects,
			}

			if certFile != "" {
				// #nosec G304 -- path is supplied by the operator
				data, err := os.ReadFile(certFile)
				if err != nil {
					return fmt.Errorf("failed to read certificate: %w", err)
				}

				request.Certificate = string(data)
			} else {
				if password == "" {
					prompted, err := promptPassword("Trust password: ")
					if err != nil {
						return err
					}

					password = prompted
				}

				request.Password = password
			}

			return withClient(cmd.Context(), func(client lxd.Client) error {
				if err := client.Certificates().Add(cmd.Context(), request); err != nil {
					return fmt.Errorf("failed to add certificate: %w", err)
				}

				_, _ = fmt.Fprintln(os.Stdout, "Certificate added to the trust store")

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&certFile, "cert", "", "PEM certificate file to trust")
	cmd.Flags().StringVar(&name, "name", "", "name for the certificate")
	cmd.Flags().StringVar(&password, "password", "", "server trust password")
	cmd.Flags().BoolVar(&restricted, "restricted", false, "restrict the certificate to the given projects")
	cmd.Flags().StringSliceVar(&projects, "projects", nil, "projects a restricted certificate may access")

	return cmd
}

func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd()) // #nosec G115 -- file descriptors fit in int

	if !term.IsTerminal(fd) {
		return "", constants.ErrCertificateRequired
	}

	_, _ = fmt.Fprint(os.Stderr, prompt)

	data, err := term.ReadPassword(fd)

	_, _ = fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if len(data) == 0 {
		return "", constants.ErrCertificateRequired
	}

	return string(data), nil
}

func newTrustRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove FINGERPRINT",
		Short: "Remove a certificate from the trust store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				if err := client.Certificates().Delete(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to remove certificate: %w", err)
				}

				_, _ = fmt.Fprintf(os.Stdout, "Certificate %s removed\n", shortFingerprint(args[0]))

				return nil
			})
		},
	}
}
