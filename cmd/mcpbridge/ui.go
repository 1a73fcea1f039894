package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ANSI 256-color styles, chosen for dark terminals.
var (
	bannerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	headingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	taglineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	faintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

const asciiArt = `   ###    ########  ########   ######  ########  ######   ######   #######
  ## ##   ##     ## ##     ## ##    ## ##       ##    ## ##    ## ##     ##
 ##   ##  ##     ## ##     ## ##       ##       ##       ##       ##     ##
##     ## ########  ########   ######  ######   ##       ##       ##     ##
######### ##        ##              ## ##       ##       ##       ##     ##
##     ## ##        ##        ##    ## ##       ##    ## ##    ## ##     ##
##     ## ##        ##         ######  ########  ######   ######   #######`

func printBanner(out io.Writer) {
	fmt.Fprintln(out, bannerStyle.Render(asciiArt))
	fmt.Fprintln(out)
	fmt.Fprintln(out, headingStyle.Render("  MCP Bridge "+version))
	fmt.Fprintln(out, taglineStyle.Render("  Inspect stdio MCP server traffic with your HTTP proxy"))
	fmt.Fprintln(out)
}

type settings struct {
	ConfigPath  string
	ProxyURL    string
	ViaUpstream bool
	Proxychains bool
	SSLBypass   bool
	StartRelay  bool
	RelayPort   int
}

func printSettings(out io.Writer, s settings) {
	printSetting(out, "Configuration", s.ConfigPath)
	if s.ViaUpstream {
		printSetting(out, "Upstream proxy", s.ProxyURL)
	} else {
		printSetting(out, "Upstream proxy", faintStyle.Render("disabled"))
	}
	printSetting(out, "Proxychains", onOff(s.Proxychains))
	printSetting(out, "SSL bypass", onOff(s.SSLBypass))
	if s.StartRelay {
		printSetting(out, "HTTP relay", fmt.Sprintf("will listen on port %d", s.RelayPort))
	} else {
		printSetting(out, "HTTP relay", faintStyle.Render("disabled (use --start-relay for proxy inspection)"))
	}
	fmt.Fprintln(out)
}

func printSetting(out io.Writer, name, value string) {
	fmt.Fprintf(out, "  %s %s\n", labelStyle.Render(name+":"), value)
}

func onOff(enabled bool) string {
	if enabled {
		return okStyle.Render("on")
	}
	return faintStyle.Render("off")
}

func printAbout(out io.Writer) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, headingStyle.Render("About MCP Bridge"))
	fmt.Fprintln(out, `
MCP Bridge is part of Appsecco's security testing toolkit. It connects to
any stdio MCP server, mirrors the session onto a local HTTP endpoint, and
routes that traffic through an intercepting proxy so you can observe,
modify, and replay MCP requests the same way you test any web application.

  Website: https://appsecco.com
  Email:   hackmyproduct@appsecco.com`)
	fmt.Fprintln(out)
}

func printFooter(out io.Writer) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, faintStyle.Render(strings.Repeat("-", 60)))
	fmt.Fprintln(out, "Thanks for using MCP Bridge "+version)
	fmt.Fprintln(out, faintStyle.Render("https://appsecco.com"))
}
