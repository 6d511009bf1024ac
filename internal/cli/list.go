package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sunyxi/salesforce-flow-cli/internal/cli/pagination"
	"github.com/sunyxi/salesforce-flow-cli/internal/config"
	"github.com/sunyxi/salesforce-flow-cli/internal/engine/cache"
	"github.com/sunyxi/salesforce-flow-cli/internal/flowfile"
	"github.com/sunyxi/salesforce-flow-cli/internal/salesforce"
)

// Output formats for list.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatCSV   = "csv"
)

const (
	listCacheQuery     = "list:flow-statuses"
	minNameColumn      = 20
	minTypeColumn      = 15
	maxDescriptionSize = 80
)

type listFlags struct {
	flowType    string
	status      string
	sortBy      string
	format      string
	cacheTTL    string
	noCache     bool
	interactive bool
	page        pagination.Params
}

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	var flags listFlags

	cmd := &cobra.Command{
		Use:   "list [flows...]",
		Short: "List flows and their status",
		Long: `List flows with their type, activation state and versions. Without flow names
every flow in the org is listed and the listing is cached (see --cache-ttl and --no-cache).`,
		Example: `  sf-flow list
  sf-flow list --type screen --status inactive
  sf-flow list Flow_A Flow_B --format json
  sf-flow list --sort-by status --format csv --no-cache
  sf-flow list --cache-ttl 15m
  sf-flow list --sort-by latest:desc --limit 10
  sf-flow list --page 2 --page-size 25
  sf-flow list --interactive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, flowfile.Dedupe(args), flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.flowType, "type", "t", "", "filter by flow type (screen, record, scheduled, ...)")
	f.StringVarP(&flags.status, "status", "s", "", "filter by status (active, inactive)")
	f.StringVar(&flags.sortBy, "sort-by", pagination.FieldName,
		"sort by field[:asc|desc] ("+strings.Join(pagination.NewFlowSorter().ValidFields(), ", ")+")")
	f.StringVar(&flags.format, "format", formatTable, "output format (table, json, csv)")
	f.StringVar(&flags.cacheTTL, "cache-ttl", "", "cache TTL for full listings, in seconds or as a duration like 10m (default from config)")
	f.BoolVar(&flags.noCache, "no-cache", false, "bypass the listing cache")
	f.BoolVarP(&flags.interactive, "interactive", "i", false, "browse the flows in an interactive list (terminal only)")
	f.IntVar(&flags.page.Limit, "limit", 0, "show at most this many flows (0 for all)")
	f.IntVar(&flags.page.Offset, "offset", 0, "skip this many flows")
	f.IntVar(&flags.page.Page, "page", 0, "page number, used with --page-size")
	f.IntVar(&flags.page.PageSize, "page-size", 0, "flows per page, used with --page")

	return cmd
}

func runList(cmd *cobra.Command, names []string, flags listFlags) error {
	ctx := cmd.Context()
	if err := validateListFlags(flags); err != nil {
		return err
	}

	// Keep stdout machine readable for json and csv.
	info := cmd.OutOrStdout()
	if flags.format != formatTable {
		info = cmd.ErrOrStderr()
	}
	st := newStyles(info, config.GetGlobalConfig().CLI.ColorOutput)

	logger.Info().Ctx(ctx).Msg("Starting flow list operation")

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	instance, err := s.authenticate(ctx)
	if err != nil {
		return err
	}

	var flows []salesforce.FlowStatus
	if len(names) > 0 {
		fmt.Fprintln(info, st.info.Render(fmt.Sprintf("🔍 Retrieving information for %d flows...", len(names))))
		flows, err = s.flows.GetMultipleFlowStatuses(ctx, names)
	} else {
		fmt.Fprintln(info, st.info.Render("🔍 Retrieving all flows..."))
		flows, err = listAllFlows(ctx, info, st, s, instance, flags)
	}
	if err != nil {
		return fmt.Errorf("failed to list flows: %w", err)
	}

	flows = filterFlows(flows, flags.flowType, flags.status)
	field, order, _ := pagination.ParseSort(flags.sortBy)
	pagination.NewFlowSorter().Sort(flows, field, order)

	fmt.Fprintln(info)
	fmt.Fprintln(info, st.bold.Render(fmt.Sprintf("📋 Found %d flows", len(flows))))
	if len(flows) == 0 {
		fmt.Fprintln(info, st.warn.Render("No flows found matching the criteria"))
		return nil
	}

	if flags.page.IsEnabled() {
		meta := pagination.NewMeta(flags.page, len(flows))
		flows = pagination.Apply(flags.page, flows)
		fmt.Fprintln(info, st.muted.Render(pageLine(meta)))
		if len(flows) == 0 {
			fmt.Fprintln(info, st.warn.Render("No flows on this page"))
			return nil
		}
	}

	if flags.interactive {
		return browseFlows(cmd, flows)
	}

	out := cmd.OutOrStdout()
	switch flags.format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err = enc.Encode(flows); err != nil {
			return err
		}
	case formatCSV:
		writeFlowCSV(out, flows)
	default:
		writeFlowTable(out, st, flows, isVerbose(cmd))
		if !isQuiet(cmd) {
			writeListSummary(out, st, flows)
		}
	}

	logger.Info().Ctx(ctx).Int("flows", len(flows)).Msg("listed flows")
	return nil
}

func validateListFlags(flags listFlags) error {
	switch flags.format {
	case formatTable, formatJSON, formatCSV:
	default:
		return fmt.Errorf("invalid --format %q (expected table, json or csv)", flags.format)
	}
	field, _, err := pagination.ParseSort(flags.sortBy)
	if err != nil {
		return fmt.Errorf("invalid --sort-by: %w", err)
	}
	if sorter := pagination.NewFlowSorter(); !sorter.IsValidField(field) {
		return fmt.Errorf("%w %q (expected one of %s)",
			pagination.ErrInvalidSortField, field, strings.Join(sorter.ValidFields(), ", "))
	}
	if err = flags.page.Validate(); err != nil {
		return err
	}
	if flags.interactive && flags.format != formatTable {
		return errors.New("--interactive only works with the table format")
	}
	switch strings.ToLower(flags.status) {
	case "", "active", "inactive":
	default:
		return fmt.Errorf("invalid --status %q (expected active or inactive)", flags.status)
	}
	if flags.cacheTTL != "" {
		if _, err = cache.ParseTTL(flags.cacheTTL); err != nil {
			return fmt.Errorf("invalid --cache-ttl: %w", err)
		}
	}
	return nil
}

// listAllFlows returns every flow in the org, served from the cache when a fresh entry exists.
func listAllFlows(
	ctx context.Context,
	info io.Writer,
	st styles,
	s *session,
	instance string,
	flags listFlags,
) ([]salesforce.FlowStatus, error) {
	store, err := openListCache(s.cfg, flags)
	if err != nil {
		logger.Warn().Ctx(ctx).Err(err).Msg("flow list cache unavailable")
		return s.flows.ListFlowStatuses(ctx)
	}

	key := cache.GenerateKey(cache.KeyParams{
		InstanceURL: instance,
		APIVersion:  s.tooling.APIVersion(),
		Query:       listCacheQuery,
	})

	var flows []salesforce.FlowStatus
	entry, err := store.Load(key, &flows)
	switch {
	case err == nil:
		age := cache.FormatDuration(entry.AgeAt(nowFunc()))
		fmt.Fprintln(info, st.muted.Render(fmt.Sprintf("Using cached flow list (%s old, use --no-cache to refresh)", age)))
		logger.Debug().Ctx(ctx).Str("key", key).Msg("flow list served from cache")
		return flows, nil
	case errors.Is(err, cache.ErrCacheDisabled):
		return s.flows.ListFlowStatuses(ctx)
	case !errors.Is(err, cache.ErrCacheNotFound) && !errors.Is(err, cache.ErrCacheExpired):
		logger.Warn().Ctx(ctx).Err(err).Msg("ignoring unreadable cache entry")
	}

	flows, err = s.flows.ListFlowStatuses(ctx)
	if err != nil {
		return nil, err
	}
	if err = store.Store(key, flows); err != nil {
		logger.Warn().Ctx(ctx).Err(err).Msg("failed to cache flow list")
	}
	return flows, nil
}

func openListCache(cfg *config.Config, flags listFlags) (*cache.FileStore, error) {
	ttl := cfg.Cache.TTLSeconds
	if flags.cacheTTL != "" {
		parsed, err := cache.ParseTTL(flags.cacheTTL)
		if err != nil {
			return nil, err
		}
		ttl = parsed
	}
	dir, err := cfg.CacheDir()
	if err != nil {
		return nil, err
	}
	return cache.NewFileStore(dir, cfg.Cache.Enabled && !flags.noCache, ttl)
}

// filterFlows applies the --type and --status filters.
func filterFlows(flows []salesforce.FlowStatus, flowType, status string) []salesforce.FlowStatus {
	typeFilter := strings.ToLower(flowType)
	statusFilter := strings.ToLower(status)

	out := flows[:0:0]
	for _, f := range flows {
		if typeFilter != "" && !matchesType(f.FlowType.Type, typeFilter) {
			continue
		}
		if statusFilter == "active" && !f.IsActive || statusFilter == "inactive" && f.IsActive {
			continue
		}
		out = append(out, f)
	}
	return out
}

// matchesType compares against the type with and without separators so
// "record" and "recordtriggered" both match "Record-Triggered Flow".
func matchesType(flowType, filter string) bool {
	t := strings.ToLower(flowType)
	compact := strings.NewReplacer("-", "", " ", "").Replace(t)
	return strings.Contains(t, filter) || strings.Contains(compact, filter)
}

// pageLine renders the paging footer, e.g. "Showing 26-50 of 120 flows (page 2 of 5)".
func pageLine(m pagination.Meta) string {
	if m.To == 0 {
		return fmt.Sprintf("Showing 0 of %d flows", m.TotalItems)
	}
	return fmt.Sprintf("Showing %d-%d of %d flows (page %d of %d)", m.From, m.To, m.TotalItems, m.CurrentPage, m.TotalPages)
}

func writeFlowCSV(w io.Writer, flows []salesforce.FlowStatus) {
	fmt.Fprintln(w, "Name,Type,Status,ActiveVersion,LatestVersion,HasNewerVersion,Description")
	for _, f := range flows {
		fmt.Fprintln(w, strings.Join([]string{
			f.Name,
			f.FlowType.Type,
			activeLabel(f.IsActive),
			fmt.Sprint(f.ActiveVersion),
			fmt.Sprint(f.LatestVersion),
			yesNo(f.HasNewerVersion),
			strings.ReplaceAll(f.Description, ",", ";"),
		}, ","))
	}
}

func writeFlowTable(w io.Writer, st styles, flows []salesforce.FlowStatus, verbose bool) {
	nameWidth, typeWidth := minNameColumn, minTypeColumn
	for _, f := range flows {
		nameWidth = max(nameWidth, len(f.Name))
		typeWidth = max(typeWidth, len(f.FlowType.Type))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, st.bold.Render(strings.Join([]string{
		pad("Name", nameWidth), pad("Type", typeWidth), pad("Status", 8), pad("Ver", 4), pad("Latest", 6), "Updates",
	}, " | ")))
	fmt.Fprintln(w, strings.Join([]string{
		strings.Repeat("-", nameWidth), strings.Repeat("-", typeWidth), strings.Repeat("-", 8),
		strings.Repeat("-", 4), strings.Repeat("-", 6), strings.Repeat("-", 7),
	}, "-+-"))

	for _, f := range flows {
		status := st.fail.Render("Inactive")
		if f.IsActive {
			status = st.ok.Render("Active")
		}
		updates := "No"
		if f.HasNewerVersion {
			updates = st.warn.Render("Yes")
		}
		fmt.Fprintln(w, strings.Join([]string{
			st.name.Render(pad(f.Name, nameWidth)),
			pad(f.FlowType.Type, typeWidth),
			pad(status, 8),
			pad(fmt.Sprint(f.ActiveVersion), 4),
			pad(fmt.Sprint(f.LatestVersion), 6),
			updates,
		}, " | "))

		if verbose && f.Description != "" {
			fmt.Fprintln(w, st.muted.Render("  "+truncate(f.Description, maxDescriptionSize)))
		}
	}
}

func writeListSummary(w io.Writer, st styles, flows []salesforce.FlowStatus) {
	var active, updates int
	byType := map[string]int{}
	var types []string
	for _, f := range flows {
		if f.IsActive {
			active++
		}
		if f.HasNewerVersion {
			updates++
		}
		if byType[f.FlowType.Type] == 0 {
			types = append(types, f.FlowType.Type)
		}
		byType[f.FlowType.Type]++
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, st.bold.Render("📊 Summary:"))
	fmt.Fprintf(w, "%s %d\n", st.bold.Render("Total:"), len(flows))
	fmt.Fprintf(w, "%s %d\n", st.ok.Render("Active:"), active)
	fmt.Fprintf(w, "%s %d\n", st.fail.Render("Inactive:"), len(flows)-active)
	fmt.Fprintf(w, "%s %d\n", st.warn.Render("With Updates:"), updates)

	fmt.Fprintln(w)
	fmt.Fprintln(w, st.bold.Render("By Type:"))
	for _, t := range types {
		fmt.Fprintf(w, "  %s: %d\n", t, byType[t])
	}
}

// pad right-pads s to width display cells, ignoring ANSI styling.
func pad(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func activeLabel(active bool) string {
	if active {
		return "Active"
	}
	return "Inactive"
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
