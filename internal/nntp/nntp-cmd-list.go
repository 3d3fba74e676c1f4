package nntp

import (
	"fmt"
	"strings"
	"time"
)

var overviewFormat = []string{
	"Subject:",
	"From:",
	"Date:",
	"Message-ID:",
	"References:",
	":bytes",
	":lines",
	"Xref:full",
}

var hdrFields = []string{
	"Subject",
	"From",
	"Date",
	"Message-ID",
	"References",
	"Newsgroups",
	"Xref",
	":bytes",
	":lines",
}

func (s *session) cmdList(args []string) (response, error) {
	if len(args) > 2 {
		return line(respSyntaxError), nil
	}

	variant := "active"
	if len(args) > 0 {
		variant = strings.ToLower(args[0])
	}
	pattern := ""
	if len(args) > 1 {
		pattern = args[1]
	}

	switch variant {
	case "active":
		return s.listActive(pattern)
	case "newsgroups":
		return s.listNewsgroups(pattern)
	case "overview.fmt":
		resp := multi{"215 information follows"}
		resp = append(resp, overviewFormat...)
		return resp, nil
	case "headers":
		resp := multi{"215 information follows"}
		resp = append(resp, hdrFields...)
		return resp, nil
	case "extensions":
		return multi{
			"215 Extensions supported by server.",
			"OVER",
			"HDR",
			"LISTGROUP",
			"XOVER",
			"XHDR",
			"MODE",
		}, nil
	case "subscriptions":
		return multi{"215 list of default newsgroups follows"}, nil
	default:
		// distributions, active.times, distrib.pats and friends
		return line(respNotPerformed), nil
	}
}

func (s *session) listActive(pattern string) (response, error) {
	stats, err := s.server.db.AllGroupStats()
	if err != nil {
		return nil, err
	}

	postFlag := "n"
	if s.server.postingAllowed() {
		postFlag = "y"
	}

	resp := multi{"215 list of newsgroups follows"}
	for _, st := range stats {
		if pattern != "" && !MatchWildmat(st.Name, pattern) {
			continue
		}
		resp = append(resp, fmt.Sprintf("%s %d %d %s", st.Name, st.High, st.Low, postFlag))
	}
	return resp, nil
}

func (s *session) listNewsgroups(pattern string) (response, error) {
	groups, err := s.server.db.GetNewsgroups()
	if err != nil {
		return nil, err
	}

	resp := multi{"215 information follows"}
	for _, g := range groups {
		if pattern != "" && !MatchWildmat(g.Name, pattern) {
			continue
		}
		resp = append(resp, g.Name+" "+g.Description)
	}
	return resp, nil
}

func (s *session) cmdNewGroups(args []string) (response, error) {
	since, ok := parseNNTPDate(args)
	if !ok {
		return line(respSyntaxError), nil
	}

	groups, err := s.server.db.GroupsCreatedSince(since)
	if err != nil {
		return nil, err
	}

	postFlag := "n"
	if s.server.postingAllowed() {
		postFlag = "y"
	}

	resp := multi{"231 list of new newsgroups follows"}
	for _, g := range groups {
		stats, err := s.server.db.GroupStats(g.Name)
		if err != nil {
			continue
		}
		resp = append(resp, fmt.Sprintf("%s %d %d %s", g.Name, stats.High, stats.Low, postFlag))
	}
	return resp, nil
}

func (s *session) cmdNewNews(args []string) (response, error) {
	if len(args) < 3 {
		return line(respSyntaxError), nil
	}
	pattern := args[0]
	since, ok := parseNNTPDate(args[1:])
	if !ok {
		return line(respSyntaxError), nil
	}

	articles, err := s.server.db.ArticlesSince(since)
	if err != nil {
		return nil, err
	}

	resp := multi{"230 List of new articles follows (multi-line)"}
	for _, a := range articles {
		if !MatchWildmat(a.Newsgroup, pattern) {
			continue
		}
		resp = append(resp, a.MessageID)
	}
	return resp, nil
}

// parseNNTPDate parses the "date time [GMT]" argument pair of NEWGROUPS and
// NEWNEWS. Dates come as yymmdd or yyyymmdd, times as hhmmss; everything is
// interpreted as UTC.
func parseNNTPDate(args []string) (time.Time, bool) {
	if len(args) < 2 || len(args) > 3 {
		return time.Time{}, false
	}
	if len(args) == 3 && strings.ToUpper(args[2]) != "GMT" {
		return time.Time{}, false
	}

	date, clock := args[0], args[1]
	var layout string
	switch len(date) {
	case 6:
		layout = "060102"
	case 8:
		layout = "20060102"
	default:
		return time.Time{}, false
	}
	if len(clock) != 6 {
		return time.Time{}, false
	}

	t, err := time.ParseInLocation(layout+"150405", date+clock, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
