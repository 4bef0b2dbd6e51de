package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"carecircle/internal/credentials"
	"carecircle/internal/repository"
	"carecircle/internal/security"
	"carecircle/internal/service"
)

func userCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage care manager accounts",
	}

	var email, password, name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a care manager account",
		RunE: func(cmd *cobra.Command, args []string) error {
			generated := password == ""
			if generated {
				p, err := credentials.GeneratePassphrase()
				if err != nil {
					return err
				}
				password = p
			}
			auth := service.NewAuthService(repository.NewUserRepository(a.db), security.NewTokenIssuer(a.cfg.TokenSecret, time.Hour))
			user, err := auth.Register(cmd.Context(), email, password, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %d (%s)\n", user.ID, user.Email)
			if generated {
				fmt.Fprintf(cmd.OutOrStdout(), "Initial password: %s\n", password)
			}
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "E-mail address")
	add.Flags().StringVar(&password, "password", "", "Password (generated when empty)")
	add.Flags().StringVar(&name, "name", "", "Display name")
	add.MarkFlagRequired("email")
	add.MarkFlagRequired("name")

	cmd.AddCommand(add)
	return cmd
}

func seniorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "senior",
		Short: "Manage seniors and their assignments",
	}

	var name, phone string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a senior profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			senior, err := service.NewCareService(a.db).CreateSenior(cmd.Context(), name, phone)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created senior %s (%s)\n", senior.ID, senior.Name)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "Full name")
	add.Flags().StringVar(&phone, "phone", "", "Phone number")
	add.MarkFlagRequired("name")

	var userID int64
	assign := &cobra.Command{
		Use:   "assign <senior-id>",
		Short: "Put a senior under a care manager's care",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := service.NewCareService(a.db).Assign(cmd.Context(), userID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Assigned %s to user %d\n", args[0], userID)
			return nil
		},
	}
	unassign := &cobra.Command{
		Use:   "unassign <senior-id>",
		Short: "Remove a senior from a care manager's care",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := service.NewCareService(a.db).Unassign(cmd.Context(), userID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unassigned %s from user %d\n", args[0], userID)
			return nil
		},
	}
	for _, c := range []*cobra.Command{assign, unassign} {
		c.Flags().Int64Var(&userID, "user", 0, "Care manager user id")
		c.MarkFlagRequired("user")
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every senior",
		RunE: func(cmd *cobra.Command, args []string) error {
			seniors, err := repository.NewSeniorRepository(a.db).ListSeniors(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range seniors {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.ID, s.Name)
			}
			return nil
		},
	}

	cmd.AddCommand(add, assign, unassign, list)
	return cmd
}
