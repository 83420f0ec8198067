package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rcourtman/pulse-snmp-profiles/internal/inventory"
	"github.com/rcourtman/pulse-snmp-profiles/internal/utils"
)

type inventoryAddOptions struct {
	ips           []string
	categories    string
	location      string
	foreignSource string
	sysObjectID   string
	hostname      string
	metadata      []string
}

func newInventoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Manage the node inventory used by profile filters and metadata",
	}
	cmd.AddCommand(newInventoryAddCmd(), newInventoryListCmd())
	return cmd
}

func newInventoryAddCmd() *cobra.Command {
	var opts inventoryAddOptions

	cmd := &cobra.Command{
		Use:   "add <label>",
		Short: "Add or replace a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := opts.node(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := inventory.Open(cfg.InventoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.UpsertNode(cmd.Context(), node)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored node %s (id %d)\n", node.Label, id)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&opts.ips, "ip", nil, "interface address (repeatable)")
	cmd.Flags().StringVar(&opts.categories, "categories", "", "comma-separated categories")
	cmd.Flags().StringVar(&opts.location, "location", "", "monitoring location")
	cmd.Flags().StringVar(&opts.foreignSource, "foreign-source", "", "foreign source (requisition) name")
	cmd.Flags().StringVar(&opts.sysObjectID, "sysobjectid", "", "known sysObjectID")
	cmd.Flags().StringVar(&opts.hostname, "hostname", "", "DNS hostname")
	cmd.Flags().StringArrayVar(&opts.metadata, "meta", nil, "metadata as context:key=value (repeatable); context defaults to node")
	return cmd
}

func (o inventoryAddOptions) node(label string) (inventory.Node, error) {
	node := inventory.Node{
		Label:         strings.TrimSpace(label),
		Location:      o.location,
		ForeignSource: o.foreignSource,
		SysObjectID:   o.sysObjectID,
		Hostname:      o.hostname,
		Categories:    utils.SplitCSV(o.categories),
		Metadata:      map[string]map[string]string{},
	}

	for _, raw := range o.ips {
		addr, err := utils.ParseHostAddress(raw)
		if err != nil {
			return inventory.Node{}, err
		}
		node.Interfaces = append(node.Interfaces, addr)
	}

	for _, entry := range o.metadata {
		scope, key, value, err := parseMetadataFlag(entry)
		if err != nil {
			return inventory.Node{}, err
		}
		if node.Metadata[scope] == nil {
			node.Metadata[scope] = map[string]string{}
		}
		node.Metadata[scope][key] = value
	}
	return node, nil
}

// parseMetadataFlag parses "context:key=value" or "key=value" (context node).
func parseMetadataFlag(entry string) (scope, key, value string, err error) {
	left, value, ok := strings.Cut(entry, "=")
	if !ok {
		return "", "", "", fmt.Errorf("invalid metadata %q: expected context:key=value", entry)
	}
	scope, key, scoped := strings.Cut(strings.TrimSpace(left), ":")
	if !scoped {
		scope, key = "node", scope
	}
	scope, key = strings.TrimSpace(scope), strings.TrimSpace(key)
	if scope == "" || key == "" {
		return "", "", "", fmt.Errorf("invalid metadata %q: context and key are required", entry)
	}
	return scope, key, value, nil
}

func newInventoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List inventory nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := inventory.Open(cfg.InventoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			nodes, err := store.ListNodes(cmd.Context())
			if err != nil {
				return err
			}
			return printNodes(cmd.OutOrStdout(), nodes)
		},
	}
}

func printNodes(out io.Writer, nodes []inventory.Node) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tLOCATION\tINTERFACES\tCATEGORIES")
	for _, n := range nodes {
		ips := make([]string, 0, len(n.Interfaces))
		for _, addr := range n.Interfaces {
			ips = append(ips, addr.String())
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.Label, orDash(n.Location), orDash(strings.Join(ips, ",")), orDash(strings.Join(n.Categories, ",")))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
