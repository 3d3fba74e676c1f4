package nntp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-dtn/dtnntp/internal/database"
	"github.com/go-dtn/dtnntp/internal/models"
)

const dateLayout = "Mon, 02 Jan 2006 15:04:05 MST"

// resolveArticle implements the three selection forms shared by ARTICLE,
// HEAD, BODY and STAT: message-id, article number in the current group, or
// the current article. The number and current forms update the current
// article pointer; the message-id form does not.
func (s *session) resolveArticle(args []string) (*models.Article, response, error) {
	if len(args) == 0 {
		if s.group == nil {
			return nil, line(respNoGroupSelected), nil
		}
		if s.article == nil {
			return nil, line(respNoArticleSelected), nil
		}
		return s.article, nil, nil
	}

	arg := args[0]
	if strings.Contains(arg, "<") && strings.Contains(arg, ">") {
		a, err := s.server.db.GetArticleByMessageID(arg)
		if errors.Is(err, database.ErrNotFound) {
			return nil, line(respNoSuchArticle), nil
		}
		if err != nil {
			return nil, nil, err
		}
		return a, nil, nil
	}

	num, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil, line(respSyntaxError), nil
	}
	if s.group == nil {
		return nil, line(respNoGroupSelected), nil
	}
	a, err := s.server.db.GetArticleByNum(s.group.Name, num)
	if errors.Is(err, database.ErrNotFound) {
		return nil, line(respNoSuchArticleNum), nil
	}
	if err != nil {
		return nil, nil, err
	}
	s.article = a
	return a, nil, nil
}

// headerLines rebuilds the article head from store fields.
func (s *session) headerLines(a *models.Article) []string {
	lines := []string{
		"Path: " + a.Path,
		"From: " + a.FromHeader,
		"Newsgroups: " + a.Newsgroup,
		"Date: " + a.CreatedAt.UTC().Format(dateLayout),
		"Subject: " + a.Subject,
		"Message-ID: " + a.MessageID,
		"References: " + a.References,
	}
	if a.ReplyTo != "" {
		lines = append(lines, "Reply-To: "+a.ReplyTo)
	}
	if a.Organization != "" {
		lines = append(lines, "Organization: "+a.Organization)
	}
	if a.UserAgent != "" {
		lines = append(lines, "User-Agent: "+a.UserAgent)
	}
	lines = append(lines, fmt.Sprintf("Xref: %s %s:%d", s.server.cfg.NNTP.Hostname, a.Newsgroup, a.ID))
	return lines
}

func (s *session) cmdArticle(args []string) (response, error) {
	a, errResp, err := s.resolveArticle(args)
	if err != nil || errResp != nil {
		return errResp, err
	}

	resp := multi{fmt.Sprintf("220 %d %s All of the article follows", a.ID, a.MessageID)}
	resp = append(resp, s.headerLines(a)...)
	resp = append(resp, "")
	resp = append(resp, strings.Split(a.Body, "\n")...)
	return resp, nil
}

func (s *session) cmdHead(args []string) (response, error) {
	a, errResp, err := s.resolveArticle(args)
	if err != nil || errResp != nil {
		return errResp, err
	}

	resp := multi{fmt.Sprintf("221 %d %s article retrieved - head follows", a.ID, a.MessageID)}
	resp = append(resp, s.headerLines(a)...)
	return resp, nil
}

func (s *session) cmdBody(args []string) (response, error) {
	a, errResp, err := s.resolveArticle(args)
	if err != nil || errResp != nil {
		return errResp, err
	}

	resp := multi{fmt.Sprintf("222 %d %s article retrieved - body follows", a.ID, a.MessageID)}
	resp = append(resp, strings.Split(a.Body, "\n")...)
	return resp, nil
}

func (s *session) cmdStat(args []string) (response, error) {
	a, errResp, err := s.resolveArticle(args)
	if err != nil || errResp != nil {
		return errResp, err
	}
	return line(fmt.Sprintf("223 %d %s Article exists", a.ID, a.MessageID)), nil
}
