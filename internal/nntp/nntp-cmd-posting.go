package nntp

import log "github.com/sirupsen/logrus"

// cmdPost switches the session into post mode. The article lines that
// follow are collected by the read loop and handed to the backend's spool
// engine when the terminating dot arrives.
func (s *session) cmdPost(args []string) (response, error) {
	if !s.server.postingAllowed() {
		return line(respPostingNotAllowed), nil
	}

	log.Debugf("Session %s switching to post mode", s.conn.RemoteAddr())
	s.postMode = true
	s.postBuffer = nil
	return line(respSendArticle), nil
}
