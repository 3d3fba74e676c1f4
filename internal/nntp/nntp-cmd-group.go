package nntp

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-dtn/dtnntp/internal/database"
)

func (s *session) cmdGroup(args []string) (response, error) {
	if len(args) != 1 {
		return line(respSyntaxError), nil
	}

	group, err := s.server.db.GetNewsgroupByName(args[0])
	if errors.Is(err, database.ErrNotFound) {
		return line(respNoSuchGroup), nil
	}
	if err != nil {
		return nil, err
	}

	stats, err := s.server.db.GroupStats(group.Name)
	if err != nil {
		return nil, err
	}

	s.group = group
	// selecting a group positions the current article at the low water mark;
	// an empty group leaves no article selected (RFC 3977 6.1.1.2)
	s.article = nil
	if first, err := s.server.db.FirstArticle(group.Name); err == nil {
		s.article = first
	}

	return line(fmt.Sprintf("211 %d %d %d %s group selected",
		stats.Count, stats.Low, stats.High, stats.Name)), nil
}

func (s *session) cmdListGroup(args []string) (response, error) {
	if len(args) > 0 {
		group, err := s.server.db.GetNewsgroupByName(args[0])
		if errors.Is(err, database.ErrNotFound) {
			return line(respNoSuchGroup), nil
		}
		if err != nil {
			return nil, err
		}
		s.group = group
		if first, err := s.server.db.FirstArticle(group.Name); err == nil {
			s.article = first
		} else {
			s.article = nil
		}
	}
	if s.group == nil {
		return line(respNoGroupSelected), nil
	}

	start, stop := int64(1), int64(maxArticleNum)
	if len(args) > 1 {
		var ok bool
		start, stop, ok = parseRange(args[1])
		if !ok {
			return line(respNotPerformed), nil
		}
	}

	articles, err := s.server.db.GetArticlesInRange(s.group.Name, start, stop)
	if err != nil {
		return nil, err
	}

	if len(articles) == 0 {
		return multi{fmt.Sprintf("211 0 0 0 %s", s.group.Name)}, nil
	}
	low := articles[0].ID
	high := articles[len(articles)-1].ID
	resp := multi{fmt.Sprintf("211 %d %d %d %s", len(articles), low, high, s.group.Name)}
	for _, a := range articles {
		resp = append(resp, strconv.FormatInt(a.ID, 10))
	}
	return resp, nil
}

func (s *session) cmdLast(args []string) (response, error) {
	if s.group == nil {
		return line(respNoGroupSelected), nil
	}
	if s.article == nil {
		return line(respNoArticleSelected), nil
	}

	prev, err := s.server.db.PrevArticle(s.group.Name, s.article.ID)
	if errors.Is(err, database.ErrNotFound) {
		return line(respNoPrevArticle), nil
	}
	if err != nil {
		return nil, err
	}

	s.article = prev
	return line(fmt.Sprintf("223 %d %s Article found", prev.ID, prev.MessageID)), nil
}

func (s *session) cmdNext(args []string) (response, error) {
	if s.group == nil {
		return line(respNoGroupSelected), nil
	}
	if s.article == nil {
		return line(respNoArticleSelected), nil
	}

	next, err := s.server.db.NextArticle(s.group.Name, s.article.ID)
	if errors.Is(err, database.ErrNotFound) {
		return line(respNoNextArticle), nil
	}
	if err != nil {
		return nil, err
	}

	s.article = next
	return line(fmt.Sprintf("223 %d %s Article found", next.ID, next.MessageID)), nil
}

const maxArticleNum = int64(1)<<62 - 1

// parseRange parses the NNTP range forms "n", "n-" and "n-m".
func parseRange(arg string) (start, stop int64, ok bool) {
	dash := -1
	for i, r := range arg {
		if r == '-' {
			dash = i
			break
		}
	}
	if dash < 0 {
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return n, n, true
	}

	start, err := strconv.ParseInt(arg[:dash], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	stop = maxArticleNum
	if rest := arg[dash+1:]; rest != "" {
		stop, err = strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return 0, 0, false
		}
	}
	return start, stop, true
}
