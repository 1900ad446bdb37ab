package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tansu/yanit/internal/api"
	"github.com/tansu/yanit/internal/catalog"
	"github.com/tansu/yanit/internal/config"
	"github.com/tansu/yanit/internal/pipeline"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Send a customer question to the running server",
	Long: `Send a customer question to the running server and print the routed reply.

Examples:
  yanit ask "siyah gecelik fiyatı ne kadar"
  yanit ask --conversation abc123 "stok var mı"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		conversation, _ := cmd.Flags().GetString("conversation")
		showJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := api.ResolveRequest{
			Tenant:         cfg.Tenant.Name,
			ConversationID: conversation,
			Text:           text,
		}
		resp, err := client.post(cmd.Context(), "/v1/resolve", req)
		if err != nil {
			return err
		}

		var result pipeline.Result
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if showJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		fmt.Println(result.Reply)
		fmt.Printf("\n%s tier=%s intent=%s confidence=%.2f latency=%dms\n",
			colorize(colorBold, "routing:"),
			result.Tier, result.Intent, result.Confidence, result.LatencyMS)
		for _, p := range result.Products {
			fmt.Printf("  %s  %s  %.2f TL\n", colorize(colorCyan, p.ID), p.Name, p.FinalPrice)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("conversation", "", "conversation id for multi-turn context")
	askCmd.Flags().Bool("json", false, "print the raw response JSON")
}

// --- catalog ---

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and validate catalog files",
}

var catalogCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Parse a catalog file and report what the server would load",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printStep("Parsing %s...", args[0])
		index, err := catalog.Load(cmd.Context(), "check", catalog.FileSource{Path: args[0]})
		if err != nil {
			printError("catalog rejected: %v", err)
			return err
		}

		printSuccess("Parsed %d products from %s", index.Len(), args[0])

		noStock := 0
		for _, p := range index.Products() {
			if p.Stock == 0 {
				noStock++
			}
		}
		if noStock > 0 {
			printWarning("%d products have zero stock", noStock)
		}
		return nil
	},
}

var catalogBumpCmd = &cobra.Command{
	Use:   "bump",
	Short: "Bump the catalog version on the running server",
	Long: `Bump the catalog version on the running server.

Cached replies embed the catalog version in their key, so a bump makes
every cached product answer miss without waiting for TTL expiry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/admin/catalog/version/bump", nil)
		if err != nil {
			return err
		}

		var result struct {
			CatalogVersion int64 `json:"catalog_version"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Catalog version is now %d", result.CatalogVersion)
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogCheckCmd)
	catalogCmd.AddCommand(catalogBumpCmd)
}

// --- cache ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the reply cache",
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop every cached reply for the configured tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, err := resolveTenant(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/admin/tenants/"+tenant+"/cache/invalidate", nil)
		if err != nil {
			return err
		}

		var result struct {
			Tenant      string `json:"tenant"`
			Invalidated int    `json:"invalidated"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Invalidated %d cached replies for %s", result.Invalidated, result.Tenant)
		return nil
	},
}

func init() {
	cacheInvalidateCmd.Flags().String("tenant", "", "tenant to invalidate (default: configured tenant)")
	cacheCmd.AddCommand(cacheInvalidateCmd)
}

// --- costs ---

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Show request and spend counters, live or for a stored day",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, err := resolveTenant(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/admin/tenants/" + tenant + "/costs"
		if day, _ := cmd.Flags().GetString("day"); day != "" {
			path += "?day=" + url.QueryEscape(day)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var costs api.CostsResponse
		if err := decodeJSON(resp, &costs); err != nil {
			return err
		}

		printStatus("Tenant", "%s", costs.Tenant)
		printStatus("Day", "%s", costs.Day)
		printStatus("Requests", "%d", costs.Requests)
		printStatus("Tier-2 answers", "%d", costs.Tier2)
		printStatus("Tier-3 calls", "%d", costs.Tier3)
		printStatus("Estimated cost", "$%.4f", costs.EstimatedCost)
		for tier, n := range costs.ByTier {
			printStatus("  by tier "+tier, "%d", n)
		}
		return nil
	},
}

func init() {
	costsCmd.Flags().String("tenant", "", "tenant to report on (default: configured tenant)")
	costsCmd.Flags().String("day", "", "report a stored UTC day (YYYY-MM-DD) instead of live counters")
}

func resolveTenant(cmd *cobra.Command) (string, error) {
	tenant, _ := cmd.Flags().GetString("tenant")
	if tenant != "" {
		return tenant, nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	return cfg.Tenant.Name, nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
