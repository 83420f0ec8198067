package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/netip"
	"strings"

	"github.com/rs/dnscache"
	"github.com/spf13/cobra"

	"github.com/rcourtman/pulse-snmp-profiles/internal/profiles"
	"github.com/rcourtman/pulse-snmp-profiles/internal/utils"
)

// hostResolver is satisfied by *dnscache.Resolver.
type hostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

type fitOptions struct {
	profile  string
	location string
	oid      string
	reveal   bool
}

func newFitCmd() *cobra.Command {
	var opts fitOptions

	cmd := &cobra.Command{
		Use:   "fit <host>",
		Short: "Find the SNMP profile that answers for a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := buildServices(cfg, nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			addr, err := resolveTarget(cmd.Context(), &dnscache.Resolver{}, args[0])
			if err != nil {
				return err
			}

			result := svc.mapper.ResolveByLabel(cmd.Context(), opts.profile, addr, opts.location, opts.oid)
			return printFit(cmd.OutOrStdout(), addr, result, opts.reveal)
		},
	}

	cmd.Flags().StringVar(&opts.profile, "profile", "", "only try the profile with this label")
	cmd.Flags().StringVar(&opts.location, "location", "", "monitoring location to probe from (default location when empty)")
	cmd.Flags().StringVar(&opts.oid, "oid", "", "object identifier to probe instead of sysObjectID.0")
	cmd.Flags().BoolVar(&opts.reveal, "reveal", false, "print communities and passphrases instead of masking them")
	return cmd
}

// resolveTarget accepts an IP literal or resolves a hostname through the
// cached resolver, preferring IPv4 answers.
func resolveTarget(ctx context.Context, resolver hostResolver, host string) (netip.Addr, error) {
	host = strings.TrimSpace(host)
	if addr, err := utils.ParseHostAddress(host); err == nil {
		return addr, nil
	}

	ips, err := resolver.LookupHost(ctx, host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolve %s: %w", host, err)
	}

	var fallback netip.Addr
	for _, ip := range ips {
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			continue
		}
		addr = addr.Unmap()
		if addr.Is4() {
			return addr, nil
		}
		if !fallback.IsValid() {
			fallback = addr
		}
	}
	if fallback.IsValid() {
		return fallback, nil
	}
	return netip.Addr{}, fmt.Errorf("resolve %s: no usable addresses", host)
}

func printFit(out io.Writer, addr netip.Addr, result profiles.Result, reveal bool) error {
	if !result.Found {
		return fmt.Errorf("no SNMP profile answered for %s", addr)
	}

	cfg := result.Config
	if !reveal {
		cfg = cfg.Redacted()
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode agent config: %w", err)
	}

	fmt.Fprintf(out, "Profile: %s\n", cfg.ProfileLabel)
	fmt.Fprintln(out, string(data))
	return nil
}
