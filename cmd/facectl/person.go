package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"face-attendance-go/internal/core/models"
	"face-attendance-go/internal/gallery"

	"github.com/spf13/cobra"
)

var personCmd = &cobra.Command{
	Use:   "person",
	Short: "Manage the roster",
}

var personAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a person to the roster",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonAdd,
}

var personListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the roster",
	Args:  cobra.NoArgs,
	RunE:  runPersonList,
}

func init() {
	rootCmd.AddCommand(personCmd)
	personCmd.AddCommand(personAddCmd, personListCmd)

	personAddCmd.Flags().String("surname", "", "Surname")
	personAddCmd.Flags().String("email", "", "Email address, unique")
	personAddCmd.Flags().String("role", "student", "Role")
}

func runPersonAdd(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	if !gallery.ValidLabel(name) {
		return fmt.Errorf("invalid name %q: must not be empty or contain '_', '/' or '\\'", name)
	}
	surname, _ := cmd.Flags().GetString("surname")
	email, _ := cmd.Flags().GetString("email")
	role, _ := cmd.Flags().GetString("role")

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	if email != "" {
		existing, err := a.Repo.GetPersonByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("email %s already registered to person %d", email, existing.ID)
		}
	}

	person := &models.Person{Name: name, Surname: surname, Email: strings.ToLower(email), Role: role}
	if err := a.Repo.CreatePerson(ctx, person); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created person %d (%s)\n", person.ID, person.Name)
	return nil
}

func runPersonList(cmd *cobra.Command, _ []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	persons, total, err := a.Repo.ListPersons(context.Background(), 0, 0)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSURNAME\tEMAIL\tROLE")
	for _, p := range persons {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Surname, p.Email, p.Role)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d persons\n", total)
	return nil
}
