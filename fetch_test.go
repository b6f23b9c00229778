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
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testFetchRequest() FetchRequest {
	return FetchRequest{
		Provider: "test",
		Product:  "c1_b_gse",
		Names:    []string{"c1_b_gse"},
		Range:    NewTimeRange(day(2009, 1, 1), day(2009, 1, 2)),
		Format:   "ASCII",
	}
}

func TestPipelineCachesResults(t *testing.T) {
	calls := 0
	direct := func(ctx context.Context, req FetchRequest) (*Variable, error) {
		calls++
		return testVar(req.Product, req.Range.Start, 2, 1, 0), nil
	}
	p := NewPipeline(direct, "", "", 0)

	for i := 0; i < 3; i++ {
		v, err := p.Fetch(context.Background(), testFetchRequest())
		if err != nil {
			t.Fatal(err)
		}
		if v.Len() != 2 {
			t.Fatalf("fetch %d returned length %d, want 2", i, v.Len())
		}
	}
	if calls != 1 {
		t.Errorf("direct fetch ran %d times, want 1", calls)
	}
}

func TestPipelineNoCache(t *testing.T) {
	calls := 0
	direct := func(ctx context.Context, req FetchRequest) (*Variable, error) {
		calls++
		return testVar(req.Product, req.Range.Start, 2, 1, 0), nil
	}
	p := NewPipeline(direct, "", "", 0)

	req := testFetchRequest()
	req.NoCache = true
	for i := 0; i < 2; i++ {
		if _, err := p.Fetch(context.Background(), req); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 2 {
		t.Errorf("direct fetch ran %d times, want 2 with the cache bypassed", calls)
	}
}

func TestPipelineCachesEmptyResults(t *testing.T) {
	calls := 0
	direct := func(ctx context.Context, req FetchRequest) (*Variable, error) {
		calls++
		return nil, nil
	}
	p := NewPipeline(direct, "", "", 0)

	for i := 0; i < 2; i++ {
		v, err := p.Fetch(context.Background(), testFetchRequest())
		if err != nil {
			t.Fatal(err)
		}
		if v != nil {
			t.Fatalf("got %v, want nil for an empty fetch", v)
		}
	}
	if calls != 1 {
		t.Errorf("direct fetch ran %d times, want 1 (empty results are cached too)", calls)
	}
}

func TestPipelineDiskCache(t *testing.T) {
	calls := 0
	direct := func(ctx context.Context, req FetchRequest) (*Variable, error) {
		calls++
		return testVar(req.Product, req.Range.Start, 3, 2, 0), nil
	}
	dir := t.TempDir()
	p := NewPipeline(direct, "", dir, 0)
	v, err := p.Fetch(context.Background(), testFetchRequest())
	if err != nil {
		t.Fatal(err)
	}

	// a second pipeline over the same directory hits the disk layer
	p2 := NewPipeline(direct, "", dir, 0)
	v2, err := p2.Fetch(context.Background(), testFetchRequest())
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("direct fetch ran %d times, want 1", calls)
	}
	if v2.Len() != v.Len() {
		t.Errorf("disk round trip changed length: %d != %d", v2.Len(), v.Len())
	}
	// dense array bookkeeping must survive the gob round trip
	if v2.Values.Get(1, 1) != v.Values.Get(1, 1) {
		t.Error("values differ after disk round trip")
	}
}

func TestProxyStepFallsBack(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer proxy.Close()

	calls := 0
	direct := func(ctx context.Context, req FetchRequest) (*Variable, error) {
		calls++
		return testVar(req.Product, req.Range.Start, 2, 1, 0), nil
	}
	step := proxyStep(proxy.URL, direct)
	v, err := step(context.Background(), testFetchRequest())
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 || v.Len() != 2 {
		t.Error("proxy miss should fall through to the direct fetch")
	}
}

func TestProxyStepServes(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get_data" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("path"); got != "test/c1_b_gse" {
			t.Errorf("proxy saw path %q", got)
		}
		fmt.Fprint(w, "# PARAMETER_UNITS : nT\n1230768000 1.0\n")
	}))
	defer proxy.Close()

	direct := func(ctx context.Context, req FetchRequest) (*Variable, error) {
		t.Fatal("direct fetch should not run when the proxy answers")
		return nil, nil
	}
	v, err := proxyStep(proxy.URL, direct)(context.Background(), testFetchRequest())
	if err != nil {
		t.Fatal(err)
	}
	if v.Len() != 1 {
		t.Errorf("proxy-served length %d, want 1", v.Len())
	}
}
