package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ytdlhost/ytdlhost/internal/domain"
	"github.com/ytdlhost/ytdlhost/internal/security"
)

func init() {
	keyCreateCmd.Flags().StringVar(&keyPerms, "perm", "get_audio,get_video", "Comma-separated permissions (get_audio, get_video, admin)")
	keyCmd.AddCommand(keyCreateCmd, keyListCmd, keyRmCmd)
	rootCmd.AddCommand(keyCmd)
}

var keyPerms string

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage API keys",
}

var keyCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an API key and print its secret once",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeyCreate,
}

var keyListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List API keys",
	RunE:    runKeyList,
}

var keyRmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Delete an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeyRm,
}

func runKeyCreate(cmd *cobra.Command, args []string) error {
	perms, err := domain.ParsePermissions(keyPerms)
	if err != nil {
		return err
	}
	if len(perms) == 0 {
		return fmt.Errorf("at least one permission is required")
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	secret, err := security.GenerateSecret()
	if err != nil {
		return err
	}
	cred := domain.Credential{
		Name:        args[0],
		SecretHash:  security.HashSecret(secret),
		Permissions: perms,
	}
	if err := db.SaveCredential(context.Background(), cred); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created key %q (%s)\n", cred.Name, cred.PermissionString())
	fmt.Fprintf(out, "Secret: %s\n", secret)
	fmt.Fprintln(out, "Store it now; it cannot be shown again.")
	return nil
}

func runKeyList(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	creds, err := db.ListCredentials(context.Background())
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No keys. Run 'ytdlhost key create <name>' to add one.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPERMISSIONS\tCREATED")
	for _, c := range creds {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.PermissionString(), ago(c.CreatedAt))
	}
	return w.Flush()
}

func runKeyRm(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteCredential(context.Background(), args[0]); err != nil {
		return fmt.Errorf("delete %q: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted key %q\n", args[0])
	return nil
}

