// Package server exposes the fixity audit over HTTP.
//
// The server only reads and schedules fixity checks. It never returns bag
// content.
package server

import (
	"encoding/json"
	"expvar"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/facebookgo/httpdown"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/replication/audit"
	"github.com/ndlib/replication/fixitydb"
)

// Version is reported on the welcome page. It is set at link time.
var Version = "dev"

// RESTServer holds the configuration for the audit status server.
//
// Set the public fields and then call Run. Do not change any fields after
// calling Run.
type RESTServer struct {
	// Port number to listen on. defaults to 14001
	PortNumber string

	// DB holds the fixity records. Run will panic if it is nil.
	DB fixitydb.DB

	// Auditor is used to schedule checks on request. If it is nil the
	// scheduling routes return 503.
	Auditor *audit.Auditor

	// Validator decodes the X-Api-Key header. If it is nil every request
	// is made as an admin.
	Validator TokenDecoder

	server httpdown.Server // used to close our listening socket
}

// Run starts the server. It blocks listening for and handling http requests
// until Stop is called.
func (s *RESTServer) Run() error {
	if s.DB == nil {
		panic("No fixity database given. DB is nil.")
	}
	if s.PortNumber == "" {
		s.PortNumber = "14001"
	}
	if s.Validator == nil {
		log.Warnln("No token validator given. All requests are admin.")
		s.Validator = NewNobodyDecoder()
	}
	log.WithField("port", s.PortNumber).Infof("Starting audit server version %s", Version)

	var err error
	h := httpdown.HTTP{}
	s.server, err = h.ListenAndServe(&http.Server{
		Addr:    ":" + s.PortNumber,
		Handler: s.Handler(),
	})
	if err != nil {
		log.Errorln(err)
		return err
	}
	return s.server.Wait()
}

// Stop closes the listening socket and waits for requests in progress to
// finish.
func (s *RESTServer) Stop() error {
	if s.server == nil {
		return nil
	}
	return s.server.Stop()
}

// Handler returns the routes of the server.
func (s *RESTServer) Handler() http.Handler {
	if s.Validator == nil {
		s.Validator = NewNobodyDecoder()
	}
	var routes = []struct {
		method  string
		route   string
		role    Role // RoleUnknown means no API key is needed to access
		handler httprouter.Handle
	}{
		{"GET", "/fixity", RoleRead, s.GetFixityHandler},
		{"GET", "/fixity/*bag", RoleRead, s.GetBagFixityHandler},
		{"PUT", "/fixity/*bag", RoleWrite, s.ScheduleHandler},
		{"GET", "/check/:id", RoleRead, s.GetCheckHandler},
		{"DELETE", "/check/:id", RoleWrite, s.DeleteCheckHandler},

		// other
		{"GET", "/", RoleUnknown, WelcomeHandler},
		{"GET", "/debug/vars", RoleUnknown, VarHandler}, // standard route for expvars data
	}

	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.method,
			route.route,
			logWrapper(s.authzWrapper(route.handler, route.role)))
	}
	return r
}

// VarHandler adapts the expvar default handler to the httprouter three parameter handler.
func VarHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	// this code is taken from the stdlib expvar package.
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	fmt.Fprintf(w, "{\n")
	first := true
	expvar.Do(func(kv expvar.KeyValue) {
		if !first {
			fmt.Fprintf(w, ",\n")
		}
		first = false
		fmt.Fprintf(w, "%q: %s", kv.Key, kv.Value)
	})
	fmt.Fprintf(w, "\n}\n")
}

// writeHTMLorJSON will either return val as JSON or as rendered using the
// given template, depending on the request header "Accept".
func writeHTMLorJSON(w http.ResponseWriter,
	r *http.Request,
	tmpl *template.Template,
	val interface{}) {

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(val)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := tmpl.Execute(w, val)
	if err != nil {
		log.Errorln("template:", err)
	}
}

// authzWrapper returns a Handler which will first verify the user token as
// having at least the given Role. The user name is added as a parameter
// "username".
func (s *RESTServer) authzWrapper(handler httprouter.Handle, leastRole Role) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := r.Header.Get("X-Api-Key")
		user, role, err := s.Validator.TokenDecode(token)
		if err != nil {
			w.WriteHeader(500)
			fmt.Fprintln(w, err.Error())
			return
		}

		if role < leastRole {
			w.WriteHeader(401)
			fmt.Fprintln(w, "Forbidden")
			return
		}

		// replace any username given in the route
		for i := range ps {
			if ps[i].Key == "username" {
				ps[i].Value = user
				handler(w, r, ps)
				return
			}
		}
		ps = append(ps, httprouter.Param{Key: "username", Value: user})
		handler(w, r, ps)
	}
}

// logWrapper takes a handler and returns a handler which does the same thing,
// after first logging the request URL.
func logWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		log.WithFields(log.Fields{
			"method": r.Method,
			"url":    r.URL.String(),
		}).Infoln("request")
		handler(w, r, ps)
	}
}
