// Package render prints conversations to a terminal.
//
// Printer.Update is fed snapshots of the live assistant message and writes
// only the new part, so it can be driven straight from store change
// notifications. Markdown converts a finished answer into styled text by
// walking the goldmark AST.
//
// Styling uses fatih/color and switches itself off when output is not a
// terminal.
package render
