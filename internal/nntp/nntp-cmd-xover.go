package nntp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-dtn/dtnntp/internal/database"
	"github.com/go-dtn/dtnntp/internal/models"
)

// overviewLine renders one tab-separated overview row: number, subject,
// from, date, message-id, references, byte count, line count, xref.
func (s *session) overviewLine(a *models.Article) string {
	xref := fmt.Sprintf("Xref: %s %s:%d", s.server.cfg.NNTP.Hostname, a.Newsgroup, a.ID)
	return strings.Join([]string{
		strconv.FormatInt(a.ID, 10),
		a.Subject,
		a.FromHeader,
		a.CreatedAt.UTC().Format(dateLayout),
		a.MessageID,
		a.References,
		strconv.Itoa(len(a.Body)),
		strconv.Itoa(len(strings.Split(a.Body, "\n"))),
		xref,
	}, "\t")
}

// cmdOver serves both OVER and XOVER.
func (s *session) cmdOver(args []string) (response, error) {
	var articles []*models.Article

	switch {
	case len(args) == 0:
		if s.group == nil {
			return line(respNoGroupSelected), nil
		}
		if s.article == nil {
			return line(respNoArticleSelected), nil
		}
		articles = []*models.Article{s.article}

	case strings.Contains(args[0], "<") && strings.Contains(args[0], ">"):
		a, err := s.server.db.GetArticleByMessageID(args[0])
		if errors.Is(err, database.ErrNotFound) {
			return line(respNoSuchArticle), nil
		}
		if err != nil {
			return nil, err
		}
		articles = []*models.Article{a}

	default:
		if s.group == nil {
			return line(respNoGroupSelected), nil
		}
		start, stop, ok := parseRange(args[0])
		if !ok {
			return line(respNotPerformed), nil
		}
		var err error
		articles, err = s.server.db.GetArticlesInRange(s.group.Name, start, stop)
		if err != nil {
			return nil, err
		}
		if len(articles) == 0 {
			return line(respNoSuchArticleNum), nil
		}
	}

	resp := multi{"224 Overview information follows"}
	for _, a := range articles {
		resp = append(resp, s.overviewLine(a))
	}
	return resp, nil
}

// cmdHdr serves HDR; the response status line is the only difference to
// XHDR.
func (s *session) cmdHdr(args []string) (response, error) {
	return s.headerQuery(args, "225 Headers follow (multi-line)")
}

func (s *session) cmdXHdr(args []string) (response, error) {
	return s.headerQuery(args, "221 Header follows")
}

func (s *session) headerQuery(args []string, status string) (response, error) {
	if len(args) == 0 {
		return line(respSyntaxError), nil
	}
	field := args[0]

	var articles []*models.Article
	msgIDForm := false

	switch {
	case len(args) == 1:
		if s.group == nil {
			return line(respNoGroupSelected), nil
		}
		if s.article == nil {
			return line(respNoArticleSelected), nil
		}
		articles = []*models.Article{s.article}

	case strings.Contains(args[1], "<") && strings.Contains(args[1], ">"):
		msgIDForm = true
		a, err := s.server.db.GetArticleByMessageID(args[1])
		if errors.Is(err, database.ErrNotFound) {
			return line(respNoSuchArticle), nil
		}
		if err != nil {
			return nil, err
		}
		articles = []*models.Article{a}

	default:
		if s.group == nil {
			return line(respNoGroupSelected), nil
		}
		start, stop, ok := parseRange(args[1])
		if !ok {
			return line(respNotPerformed), nil
		}
		var err error
		articles, err = s.server.db.GetArticlesInRange(s.group.Name, start, stop)
		if err != nil {
			return nil, err
		}
		if len(articles) == 0 {
			return line(respNoArticlesInRange), nil
		}
	}

	resp := multi{status}
	for _, a := range articles {
		num := a.ID
		if msgIDForm {
			num = 0
		}
		resp = append(resp, fmt.Sprintf("%d %s", num, s.headerValue(a, field)))
	}
	return resp, nil
}

// headerValue resolves one header field for HDR/XHDR, including the virtual
// :bytes and :lines fields.
func (s *session) headerValue(a *models.Article, field string) string {
	switch strings.ToLower(field) {
	case "subject":
		return a.Subject
	case "from":
		return a.FromHeader
	case "date":
		return a.CreatedAt.UTC().Format(dateLayout)
	case "message-id":
		return a.MessageID
	case "references":
		return a.References
	case "newsgroups":
		return a.Newsgroup
	case "reply-to":
		return a.ReplyTo
	case "organization":
		return a.Organization
	case "user-agent":
		return a.UserAgent
	case "xref":
		return fmt.Sprintf("%s %s:%d", s.server.cfg.NNTP.Hostname, a.Newsgroup, a.ID)
	case ":bytes":
		return strconv.Itoa(len(a.Body))
	case ":lines":
		return strconv.Itoa(len(strings.Split(a.Body, "\n")))
	default:
		return ""
	}
}

// cmdCurrent returns overview rows for the most recent articles across all
// groups, newest first. Not part of RFC 3977; kept for web frontends that
// poll the server for activity.
func (s *session) cmdCurrent(args []string) (response, error) {
	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return line(respSyntaxError), nil
		}
		limit = n
	}

	articles, err := s.server.db.RecentArticles(limit)
	if err != nil {
		return nil, err
	}

	resp := multi{"224 Overview information follows"}
	for _, a := range articles {
		resp = append(resp, strings.Join([]string{
			strconv.FormatInt(a.ID, 10),
			a.Subject,
			a.FromHeader,
			a.CreatedAt.UTC().Format(dateLayout),
			a.MessageID,
			a.Newsgroup,
			a.References,
			strconv.Itoa(len(a.Body)),
			strconv.Itoa(len(strings.Split(a.Body, "\n"))),
		}, "\t"))
	}
	return resp, nil
}
