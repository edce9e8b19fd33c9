package server

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/replication/bagit"
	"github.com/ndlib/replication/fixitydb"
)

// GetFixityHandler handles requests to GET /fixity. The query parameters
// start, end, bag, and status narrow the records returned. Times may be
// dates or RFC3339 timestamps. An end date includes the whole day.
func (s *RESTServer) GetFixityHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	q := r.URL.Query()
	start, err := fixitydb.ParseTime(q.Get("start"))
	if err != nil {
		badRequest(w, "start", err)
		return
	}
	end, err := parseEndTime(q.Get("end"))
	if err != nil {
		badRequest(w, "end", err)
		return
	}
	status := q.Get("status")
	if status != "" {
		if _, err := fixitydb.ValidateStatus(status); err != nil {
			badRequest(w, "status", err)
			return
		}
	}
	result := s.DB.SearchFixity(start, end, q.Get("bag"), status)
	writeHTMLorJSON(w, r, fixityListTemplate, result)
}

// GetBagFixityHandler handles requests to GET /fixity/*bag. It returns every
// check of the bag, newest first.
func (s *RESTServer) GetBagFixityHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	bag, ok := bagName(ps)
	if !ok {
		badRequest(w, "bag", fmt.Errorf("invalid bag name %q", ps.ByName("bag")))
		return
	}
	result := s.DB.SearchFixity(time.Time{}, time.Time{}, bag, "")
	writeHTMLorJSON(w, r, fixityListTemplate, result)
}

// ScheduleHandler handles requests to PUT /fixity/*bag. It schedules a check
// of the bag for now and redirects to the new record.
func (s *RESTServer) ScheduleHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if s.Auditor == nil {
		w.WriteHeader(503)
		fmt.Fprintln(w, "Fixity checking is disabled")
		return
	}
	bag, ok := bagName(ps)
	if !ok {
		badRequest(w, "bag", fmt.Errorf("invalid bag name %q", ps.ByName("bag")))
		return
	}
	id, err := s.Auditor.Schedule(bag)
	if errors.Cause(err) == bagit.ErrNotABag {
		w.WriteHeader(404)
		fmt.Fprintln(w, err.Error())
		return
	} else if err != nil {
		log.WithField("bag", bag).Errorln("schedule fixity:", err)
		w.WriteHeader(500)
		fmt.Fprintln(w, err.Error())
		return
	}
	log.WithFields(log.Fields{
		"bag":  bag,
		"id":   id,
		"user": ps.ByName("username"),
	}).Infoln("Fixity check scheduled")
	w.Header().Set("Location", fmt.Sprintf("/check/%d", id))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(202)
	json.NewEncoder(w).Encode(s.DB.GetFixity(id))
}

// GetCheckHandler handles requests to GET /check/:id
func (s *RESTServer) GetCheckHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	record := s.lookupCheck(w, ps)
	if record == nil {
		return
	}
	writeHTMLorJSON(w, r, fixityListTemplate, []fixitydb.Fixity{*record})
}

// DeleteCheckHandler handles requests to DELETE /check/:id. Only checks that
// have not run yet may be deleted.
func (s *RESTServer) DeleteCheckHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	record := s.lookupCheck(w, ps)
	if record == nil {
		return
	}
	if record.Status != fixitydb.StatusScheduled {
		w.WriteHeader(409)
		fmt.Fprintf(w, "Check %d has already run\n", record.ID)
		return
	}
	err := s.DB.DeleteFixity(record.ID)
	if err != nil {
		w.WriteHeader(500)
		fmt.Fprintln(w, err.Error())
		return
	}
	log.WithFields(log.Fields{
		"id":   record.ID,
		"user": ps.ByName("username"),
	}).Infoln("Fixity check deleted")
}

// lookupCheck returns the record named by the route. If there is none an
// error response is written and nil is returned.
func (s *RESTServer) lookupCheck(w http.ResponseWriter, ps httprouter.Params) *fixitydb.Fixity {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "id", fmt.Errorf("invalid check id %q", ps.ByName("id")))
		return nil
	}
	record := s.DB.GetFixity(id)
	if record == nil {
		w.WriteHeader(404)
		fmt.Fprintf(w, "No check %d\n", id)
	}
	return record
}

// bagName returns the bag named by the route, which must be a clean relative
// path inside the replica cache.
func bagName(ps httprouter.Params) (string, bool) {
	bag := strings.Trim(ps.ByName("bag"), "/")
	if bag == "" || path.Clean(bag) != bag || bag == ".." || strings.HasPrefix(bag, "../") {
		return "", false
	}
	return bag, true
}

func parseEndTime(s string) (time.Time, error) {
	t, err := fixitydb.ParseTime(s)
	if err == nil && len(s) == len("2006-01-02") {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, err
}

func badRequest(w http.ResponseWriter, param string, err error) {
	w.WriteHeader(400)
	fmt.Fprintf(w, "Bad %s: %s\n", param, err.Error())
}

var fixityListTemplate = template.Must(template.New("fixitylist").Parse(`<html>
<head><title>Fixity</title></head>
<body>
<h1>Fixity checks</h1>
<table>
<tr><th>ID</th><th>Bag</th><th>Scheduled</th><th>Status</th><th>Notes</th></tr>
{{ range . }}
<tr>
<td><a href="/check/{{ .ID }}">{{ .ID }}</a></td>
<td><a href="/fixity/{{ .Bag }}">{{ .Bag }}</a></td>
<td>{{ .ScheduledTime.Format "2006-01-02 15:04:05 MST" }}</td>
<td>{{ .Status }}</td>
<td>{{ .Notes }}</td>
</tr>
{{ else }}
<tr><td colspan="5">No records</td></tr>
{{ end }}
</table>
</body>
</html>
`))
