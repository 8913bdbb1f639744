package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

func pingCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the API is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.do(cmd.Context(), "GET", "/healthz", nil)
		},
	}
}

func listCmd(c *client) *cobra.Command {
	var cloudOnly string
	cmd := &cobra.Command{
		Use:   "list RESOURCE [field=value ...]",
		Short: "List documents, optionally filtered by field",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := pairs(args[1:])
			if err != nil {
				return err
			}
			if cloudOnly != "" {
				q.Set("cloudonly", cloudOnly)
			}
			path := "/api/v2/" + url.PathEscape(args[0])
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			return c.do(cmd.Context(), "GET", path, nil)
		},
	}
	cmd.Flags().StringVar(&cloudOnly, "cloudonly", "", "fetch a single cloud by name")
	return cmd
}

func saveCmd(c *client) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "save RESOURCE field=value [field=value ...]",
		Short: "Create a document or property item; --force updates an existing one",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := pairs(args[1:])
			if err != nil {
				return err
			}
			if force {
				form.Set("force", "True")
			}
			return c.do(cmd.Context(), "POST", "/api/v2/"+url.PathEscape(args[0]), form)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "update the document if it already exists")
	return cmd
}

func deleteCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete RESOURCE NAME",
		Short: "Delete a document by its name field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(cmd.Context(), "DELETE", "/api/v2/"+url.PathEscape(args[0])+"/"+url.PathEscape(args[1]), nil)
		},
	}
}

func removeItemCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-item PROPERTY ITEM NAME",
		Short: "Remove one item of a property, e.g. remove-item schedule 0 host01",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v2/" + url.PathEscape(args[0]) + "/" + url.PathEscape(args[1]) + "/" + url.PathEscape(args[2])
			return c.do(cmd.Context(), "DELETE", path, nil)
		},
	}
}

// pairs parses field=value arguments.
func pairs(args []string) (url.Values, error) {
	v := url.Values{}
	for _, a := range args {
		k, val, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected field=value, got %q", a)
		}
		v.Add(k, val)
	}
	return v, nil
}
