package nntp

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-dtn/dtnntp/internal/config"
)

func (s *session) cmdQuit(args []string) (response, error) {
	if len(args) > 0 {
		return line(respSyntaxError), nil
	}
	s.terminated = true
	return line(respClosing), nil
}

func (s *session) cmdDate(args []string) (response, error) {
	return line("111 " + time.Now().UTC().Format("20060102150405")), nil
}

func (s *session) cmdMode(args []string) (response, error) {
	if len(args) != 1 {
		return line(respSyntaxError), nil
	}
	switch strings.ToLower(args[0]) {
	case "reader":
		if s.server.postingAllowed() {
			return line("200 Hello, you can post"), nil
		}
		return line("201 Hello, you can't post"), nil
	case "stream":
		return line("500 Command not understood"), nil
	default:
		return line(respSyntaxError), nil
	}
}

func (s *session) cmdCapabilities(args []string) (response, error) {
	caps := multi{
		"101 Capability list:",
		"VERSION 2",
		"IMPLEMENTATION dtnntp " + config.AppVersion,
		"READER",
		"OVER MSGID",
		"HDR",
		"LIST ACTIVE NEWSGROUPS OVERVIEW.FMT HEADERS SUBSCRIPTIONS",
	}
	if s.server.postingAllowed() {
		caps = append(caps, "POST")
	}
	return caps, nil
}

func (s *session) cmdHelp(args []string) (response, error) {
	resp := multi{"100 Help text follows (multi-line)"}
	resp = append(resp, fmt.Sprintf("  dtnntp %s - NNTP gateway to a BP7 DTN overlay", config.AppVersion))
	resp = append(resp, "  known commands:")
	for _, name := range AvailableCommands() {
		resp = append(resp, "    "+name)
	}
	return resp, nil
}
