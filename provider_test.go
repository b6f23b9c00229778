/*
Copyright © 2026 the Impex authors.
This file is part of Impex.

Impex is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Impex is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Impex.  If not, see <http://www.gnu.org/licenses/>.
*/

package impex

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const fakeObsTree = `<?xml version="1.0"?>
<dataRoot>
  <dataCenter name="TestCenter">
    <mission name="Cluster" xmlid="Cluster">
      <instrument name="FGM" xmlid="Cluster:FGM">
        <dataset name="c1-fgm" xmlid="c1-fgm-prp" dataStart="2000-01-01" dataStop="2020-01-01">
          <parameter name="b_gse" xmlid="c1_b_gse" units="nT"/>
          <parameter name="b_gsm" xmlid="c1_b_gsm" units="nT"/>
          <parameter name="flaky" xmlid="c1_flaky"/>
        </dataset>
        <dataset name="c1-restricted" xmlid="c1-restricted"
          dataStart="2000-01-01" dataStop="2010-01-01" timeRestriction="2008-01-01">
          <parameter name="b_priv" xmlid="c1_b_priv"/>
        </dataset>
      </instrument>
    </mission>
  </dataCenter>
</dataRoot>`

const fakeTimetableList = `<timeTableList>
  <timetab xmlid="tt_shared" name="shared crossings"/>
</timeTableList>`

const fakePrivateTimetableList = `<timeTableList>
  <timetab xmlid="tt_private" name="my crossings"/>
</timeTableList>`

const fakeCatalogList = `<catalogList>
  <catalog xmlid="cat_shocks" name="shock events"/>
</catalogList>`

const fakeTimetableDoc = `# Name : crossings
2008-01-01T00:00:00 2008-01-02T00:00:00
2008-02-01T00:00:00 2008-02-02T00:00:00
`

const fakeCatalogDoc = `# Name : shock events
# COLUMNS : start, stop, quality
2008-01-01T00:00:00 2008-01-02T00:00:00 0.9
`

const fakeDataDoc = `# PARAMETER_UNITS : nT
1230768000 1.0 2.0
1230768060 3.0 4.0
`

// fakeImpex is an in-process provider speaking enough of the request
// dialect for the retrieval engine tests.
type fakeImpex struct {
	srv *httptest.Server

	paramCalls     int64
	credentialedIn int64
}

func newFakeImpex() *fakeImpex {
	f := &fakeImpex{}
	mux := http.NewServeMux()

	mux.HandleFunc("/getObsDataTree.php", func(w http.ResponseWriter, r *http.Request) {
		// indirect answer: the body is the location of the document
		fmt.Fprint(w, f.srv.URL+"/tree.xml")
	})
	mux.HandleFunc("/tree.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fakeObsTree)
	})
	mux.HandleFunc("/getTimeTablesList.php", func(w http.ResponseWriter, r *http.Request) {
		// indirect answer wrapped in an HTML anchor
		if r.URL.Query().Get("userID") != "" {
			fmt.Fprintf(w, `<a href="#">%s/ttlist_private.xml</a>`, f.srv.URL)
			return
		}
		fmt.Fprintf(w, `<a href="#">%s/ttlist.xml</a>`, f.srv.URL)
	})
	mux.HandleFunc("/ttlist.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fakeTimetableList)
	})
	mux.HandleFunc("/ttlist_private.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fakePrivateTimetableList)
	})
	mux.HandleFunc("/getCatalogsList.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, f.srv.URL+"/catlist.xml")
	})
	mux.HandleFunc("/catlist.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fakeCatalogList)
	})
	mux.HandleFunc("/getTimeTable.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ttID") == "tt_private" && r.URL.Query().Get("userID") == "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, fakeTimetableDoc)
	})
	mux.HandleFunc("/getCatalog.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fakeCatalogDoc)
	})
	mux.HandleFunc("/getParameter.php", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("parameterID") == "c1_flaky" && strings.HasPrefix(q.Get("startTime"), "2009-01-11") {
			http.Error(w, "internal error", http.StatusNotFound)
			return
		}
		atomic.AddInt64(&f.paramCalls, 1)
		if q.Get("userID") != "" {
			atomic.AddInt64(&f.credentialedIn, 1)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":      true,
			"dataFileURLs": f.srv.URL + "/data.txt",
		})
	})
	mux.HandleFunc("/data.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fakeDataDoc)
	})

	f.srv = httptest.NewServer(mux)
	return f
}

func (f *fakeImpex) fetches() int64 { return atomic.LoadInt64(&f.paramCalls) }

func newTestProvider(t *testing.T, f *fakeImpex, creds Credentials) *Provider {
	t.Helper()
	p := NewProvider(Config{
		Name:         "test",
		ServerURL:    f.srv.URL,
		OutputFormat: "ASCII",
		Credentials:  creds,
		Capabilities: []Endpoint{
			EndpointObsTree, EndpointGetParameter,
			EndpointListTimetables, EndpointGetTimetable,
			EndpointListCatalogs, EndpointGetCatalog,
		},
	}, NewRegistry())
	if err := p.UpdateInventory(); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestGetParameterChunking(t *testing.T) {
	f := newFakeImpex()
	defer f.srv.Close()
	p := newTestProvider(t, f, Credentials{})

	v, err := p.GetParameter("c1_b_gse", day(2009, 1, 1), day(2009, 1, 25))
	if err != nil {
		t.Fatal(err)
	}
	if got := f.fetches(); got != 3 {
		t.Errorf("server saw %d parameter requests, want 3", got)
	}
	// the fake answers 2 samples per chunk
	if v.Len() != 6 {
		t.Errorf("merged length %d, want 6", v.Len())
	}
	if v.Meta["UNITS"] != "nT" {
		t.Errorf("metadata = %v", v.Meta)
	}
}

func TestGetParameterCached(t *testing.T) {
	f := newFakeImpex()
	defer f.srv.Close()
	p := newTestProvider(t, f, Credentials{})

	if _, err := p.GetParameter("c1_b_gse", day(2009, 1, 1), day(2009, 1, 5)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.GetParameter("c1_b_gse", day(2009, 1, 1), day(2009, 1, 5)); err != nil {
		t.Fatal(err)
	}
	if got := f.fetches(); got != 1 {
		t.Errorf("server saw %d parameter requests, want 1 (second request cached)", got)
	}
}

func TestGetParameterOutsideDefinitionRange(t *testing.T) {
	f := newFakeImpex()
	defer f.srv.Close()
	p := newTestProvider(t, f, Credentials{})

	v, err := p.GetParameter("c1_b_gse", day(2021, 1, 1), day(2021, 1, 2))
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("got %v, want nil outside the definition range", v)
	}
	if got := f.fetches(); got != 0 {
		t.Errorf("server saw %d parameter requests, want 0", got)
	}
}

func TestGetParameterRestrictedNoCredentials(t *testing.T) {
	f := newFakeImpex()
	defer f.srv.Close()
	p := newTestProvider(t, f, Credentials{})

	_, err := p.GetParameter("c1_b_priv", day(2008, 6, 1), day(2008, 6, 2))
	var mc *MissingCredentialsError
	if !errors.As(err, &mc) {
		t.Fatalf("got %v, want a MissingCredentialsError", err)
	}
	if got := f.fetches(); got != 0 {
		t.Errorf("server saw %d parameter requests before the credential check, want 0", got)
	}
}

func TestGetParameterRestrictedWithCredentials(t *testing.T) {
	f := newFakeImpex()
	defer f.srv.Close()
	p := newTestProvider(t, f, Credentials{UserID: "alice", Password: "s3cret"})

	v, err := p.GetParameter("c1_b_priv", day(2008, 6, 1), day(2008, 6, 2))
	if err != nil {
		t.Fatal(err)
	}
	if v == nil {
		t.Fatal("got nil variable for a credentialed restricted request")
	}
	if atomic.LoadInt64(&f.credentialedIn) == 0 {
		t.Error("restricted request did not carry credentials")
	}
	// requests before the restriction boundary need no credentials
	before := atomic.LoadInt64(&f.credentialedIn)
	if _, err := p.GetParameter("c1_b_priv", day(2005, 6, 1), day(2005, 6, 2)); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt64(&f.credentialedIn) != before {
		t.Error("unrestricted request should not carry credentials")
	}
}

func TestGetParameterSkipsFailedChunks(t *testing.T) {
	f := newFakeImpex()
	defer f.srv.Close()
	p := newTestProvider(t, f, Credentials{})

	// the fake rejects the chunk starting 2009-01-11 for this product
	v, err := p.GetParameter("c1_flaky", day(2009, 1, 1), day(2009, 1, 25))
	if err != nil {
		t.Fatal(err)
	}
	if v.Len() != 4 {
		t.Errorf("merged length %d, want 4 (one chunk of three failed)", v.Len())
	}
}

func TestGetParameterUnknown(t *testing.T) {
	f := newFakeImpex()
	defer f.srv.Close()
	p := newTestProvider(t, f, Credentials{})

	_, err := p.GetParameter("nope", day(2009, 1, 1), day(2009, 1, 2))
	var ue *UnknownProductError
	if !errors.As(err, &ue) {
		t.Fatalf("got %v, want an UnknownProductError", err)
	}
}

func TestGetDataset(t *testing.T) {
	f := newFakeImpex()
	defer f.srv.Close()
	p := newTestProvider(t, f, Credentials{})

	ds, err := p.GetDataset("c1-fgm-prp", day(2009, 1, 1), day(2009, 1, 5))
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Variables) != 3 {
		t.Fatalf("got %d variables, want 3", len(ds.Variables))
	}
	for _, name := range []string{"b_gse", "b_gsm", "flaky"} {
		if _, ok := ds.Variables[name]; !ok {
			t.Errorf("dataset missing variable %q", name)
		}
	}
	if ds.Meta["start_date"] != "2000-01-01" {
		t.Errorf("dataset metadata = %v", ds.Meta)
	}
}

func TestGetTimeTable(t *testing.T) {
	f := newFakeImpex()
	defer f.srv.Close()
	p := newTestProvider(t, f, Credentials{})

	tt, err := p.GetTimeTable("tt_shared")
	if err != nil {
		t.Fatal(err)
	}
	if len(tt.Ranges) != 2 {
		t.Errorf("got %d ranges, want 2", len(tt.Ranges))
	}
	if tt.Name != "shared crossings" {
		t.Errorf("name = %q", tt.Name)
	}
}

func TestGetUserTimeTable(t *testing.T) {
	f := newFakeImpex()
	defer f.srv.Close()
	p := newTestProvider(t, f, Credentials{UserID: "alice", Password: "s3cret"})

	tts := p.ListUserTimetables()
	if len(tts) != 1 || tts[0].UID != "tt_private" {
		t.Fatalf("user timetables = %v", tts)
	}
	tt, err := p.GetTimeTable("tt_private")
	if err != nil {
		t.Fatal(err)
	}
	if len(tt.Ranges) != 2 {
		t.Errorf("got %d ranges, want 2", len(tt.Ranges))
	}
}

func TestGetCatalog(t *testing.T) {
	f := newFakeImpex()
	defer f.srv.Close()
	p := newTestProvider(t, f, Credentials{})

	cat, err := p.GetCatalog("cat_shocks")
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(cat.Events))
	}
	if cat.Events[0].Meta["quality"] != "0.9" {
		t.Errorf("event metadata = %v", cat.Events[0].Meta)
	}
}

func TestGetDataDispatch(t *testing.T) {
	f := newFakeImpex()
	defer f.srv.Close()
	p := newTestProvider(t, f, Credentials{})

	got, err := p.GetData("c1_b_gse", day(2009, 1, 1), day(2009, 1, 5))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.(*Variable); !ok {
		t.Errorf("parameter request returned %T", got)
	}

	got, err = p.GetData("c1-fgm-prp", day(2009, 1, 1), day(2009, 1, 5))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.(*Dataset); !ok {
		t.Errorf("dataset request returned %T", got)
	}

	got, err = p.GetData("tt_shared", day(2009, 1, 1), day(2009, 1, 5))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.(*TimeTable); !ok {
		t.Errorf("timetable request returned %T", got)
	}

	if _, err := p.GetData("nope", day(2009, 1, 1), day(2009, 1, 5)); err == nil {
		t.Error("expected an error for an unknown product")
	}
}

func TestListings(t *testing.T) {
	f := newFakeImpex()
	defer f.srv.Close()
	p := newTestProvider(t, f, Credentials{})

	if got := len(p.ListDatasets()); got != 2 {
		t.Errorf("got %d datasets, want 2", got)
	}
	if got := len(p.ListParameters("")); got != 4 {
		t.Errorf("got %d parameters, want 4", got)
	}
	params := p.ListParameters("c1-fgm-prp")
	if len(params) != 3 {
		t.Fatalf("got %d dataset parameters, want 3", len(params))
	}
	if params[0].UID != "c1_b_gse" {
		t.Errorf("dataset parameters out of tree order: %v", params[0].UID)
	}
	if got := len(p.ListTimetables()); got != 1 {
		t.Errorf("got %d timetables, want 1", got)
	}
	if got := len(p.ListCatalogs()); got != 1 {
		t.Errorf("got %d catalogs, want 1", got)
	}
}

func TestProductClassification(t *testing.T) {
	f := newFakeImpex()
	defer f.srv.Close()
	p := newTestProvider(t, f, Credentials{})

	for uid, want := range map[string]ProductKind{
		"c1-fgm-prp": DatasetProduct,
		"c1_b_gse":   ParameterProduct,
		"tt_shared":  TimetableProduct,
		"cat_shocks": CatalogProduct,
		"nope":       UnknownProduct,
	} {
		if got := p.ProductType(uid); got != want {
			t.Errorf("ProductType(%q) = %v, want %v", uid, got, want)
		}
	}
	parent, ok := p.FindParentDataset("c1_b_gsm")
	if !ok || parent != "c1-fgm-prp" {
		t.Errorf("FindParentDataset = %q, %v", parent, ok)
	}
}
