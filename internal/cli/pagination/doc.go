// Package pagination provides paging and sorting for flow listings.
//
// It contains:
//   - Params: --limit/--offset and --page/--page-size parsing and validation
//   - Meta: paging metadata for the listing footer
//   - FlowSorter: stable field:order sorting of flow statuses
package pagination
