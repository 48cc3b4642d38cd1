// Package ui holds the terminal presentation layer: the color palette and
// status symbols, an inline spinner for long operations, the connect form,
// and the live sweep view. Nothing in here talks to the transport; views are
// fed by the packages that do.
package ui
