// Package listview provides a scrolling, selectable list for Bubble Tea programs.
//
// Only the rows inside the viewport are rendered, so large flow listings stay
// responsive. The model supports arrow, page, home/end and vim-style keys;
// enter chooses the selected item and quits, q or esc quits without a choice.
package listview
