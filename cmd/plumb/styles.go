// SPDX-License-Identifier: MPL-2.0

package cmd

import "github.com/charmbracelet/lipgloss"

// Terminal palette. Picked for legibility on dark backgrounds; addresses and
// versions get their own color so resolution output scans vertically.
const (
	colorHeading = lipgloss.Color("#2DD4BF") // teal, headers
	colorDim     = lipgloss.Color("#94A3B8") // slate, secondary text
	colorOK      = lipgloss.Color("#4ADE80") // green, resolved/verified
	colorFail    = lipgloss.Color("#F87171") // red, failures
	colorCaution = lipgloss.Color("#FBBF24") // amber, warnings
	colorAddress = lipgloss.Color("#818CF8") // indigo, addresses and versions
)

var (
	// TitleStyle renders the tool name in help output.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorHeading)

	// SubtitleStyle renders taglines and de-emphasized detail.
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	// SuccessStyle renders resolved and verified outcomes.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(colorOK)

	// ErrorStyle renders failed discovery items and fatal output.
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorFail)

	// WarningStyle renders non-fatal conditions, like a config file that
	// failed to load.
	WarningStyle = lipgloss.NewStyle().
			Foreground(colorCaution)

	// AddressStyle renders package addresses and address@version pairs.
	AddressStyle = lipgloss.NewStyle().
			Foreground(colorAddress)
)
