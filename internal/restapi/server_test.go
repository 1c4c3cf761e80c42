package restapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"github.com/switchdb/restd/internal/config"
	"github.com/switchdb/restd/internal/conn"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/notify"
	"github.com/switchdb/restd/internal/read"
	"github.com/switchdb/restd/internal/resource"
	"github.com/switchdb/restd/internal/restapi"
	"github.com/switchdb/restd/internal/schema"
	"github.com/switchdb/restd/internal/write"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	doc := []byte(`{
		"root": "system",
		"tables": {
			"system": {
				"is_root": true
			},
			"vrf": {
				"index_columns": ["name"],
				"columns": {
					"name": {"category":"configuration","type":"string","mutable":true},
					"tag":  {"category":"configuration","type":"string","mutable":true}
				},
				"references": {
					"system": {"relation":"parent","ref_table":"system","n_min":1,"n_max":1}
				}
			},
			"subscriber": {
				"index_columns": ["name"],
				"columns": {
					"name": {"category":"configuration","type":"string","mutable":true},
					"type": {"category":"configuration","type":"string","mutable":true}
				},
				"references": {
					"system": {"relation":"parent","ref_table":"system","n_min":1,"n_max":1}
				}
			},
			"subscription": {
				"index_columns": ["name"],
				"columns": {
					"name":     {"category":"configuration","type":"string","mutable":true},
					"resource": {"category":"configuration","type":"string","mutable":true}
				},
				"references": {
					"subscriber": {"relation":"parent","ref_table":"subscriber","n_min":1,"n_max":1}
				}
			}
		}
	}`)
	s, err := schema.Load(doc)
	require.NoError(t, err)
	return s
}

func newTestServer(t *testing.T) (*restapi.Server, *idl.DB) {
	t.Helper()
	s := testSchema(t)
	db := idl.New(s)
	ctx := context.Background()

	txn := db.OpenTransaction(ctx)
	txn.Insert(s.Table("system"))
	_, err := txn.Commit(ctx)
	require.NoError(t, err)

	rz := resource.New(s, db)
	re := read.New(s, db)
	we := write.New(s, db, rz)
	ws := restapi.NewWSDispatcher()
	ne := notify.New(s, db, rz, ws)
	cm := conn.New(db, 0, 0)

	cfg := &config.Config{
		SessionCookieSecret: "test-secret",
		AuthEnabled:         false,
		ForceHTTPS:          false,
	}

	server := restapi.NewServer(s, db, rz, re, we, ne, cm, cfg, ws)
	server.Credentials = restapi.StaticCredentials{
		"admin": {Password: "swordfish", Roles: []string{"admin"}},
	}
	return server, db
}

func TestLoginAndLogout(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	form := strings.NewReader("username=admin&password=swordfish")
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/login", form)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	var sessionCookie string
	for _, c := range resp.Cookies() {
		if c.Name == "restd_session" {
			sessionCookie = c.Value
		}
	}
	require.NotEmpty(t, sessionCookie)

	logoutReq, err := http.NewRequest(http.MethodPost, ts.URL+"/logout", nil)
	require.NoError(t, err)
	logoutResp, err := ts.Client().Do(logoutReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, logoutResp.StatusCode)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	form := strings.NewReader("username=admin&password=wrong")
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/login", form)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Link"), "/login")
}

func TestResourceCRUDRoundTrip(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()
	client := ts.Client()

	createBody := `{"configuration": {"name": "vrf-a", "tag": "blue"}}`
	resp, err := client.Post(ts.URL+"/rest/v1/system/vrfs", "application/json", strings.NewReader(createBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	location := resp.Header.Get("Location")
	require.NotEmpty(t, location)

	getResp, err := client.Get(ts.URL + location)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	require.NotEmpty(t, getResp.Header.Get("ETag"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&body))
	config, _ := body["configuration"].(map[string]any)
	require.Equal(t, "vrf-a", config["name"])

	etag := getResp.Header.Get("ETag")
	condReq, err := http.NewRequest(http.MethodGet, ts.URL+location, nil)
	require.NoError(t, err)
	condReq.Header.Set("If-None-Match", etag)
	condResp, err := client.Do(condReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotModified, condResp.StatusCode)

	deleteReq, err := http.NewRequest(http.MethodDelete, ts.URL+location, nil)
	require.NoError(t, err)
	deleteResp, err := client.Do(deleteReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, deleteResp.StatusCode)

	finalGet, err := client.Get(ts.URL + location)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, finalGet.StatusCode)
}

func TestUnknownResourceReturns404(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/rest/v1/system/does-not-exist")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// spec.md §4.8 step 6: PUTting back the exact current configuration must
// succeed with 200 even when If-Match is absent or would otherwise fail,
// since the body already equals the current state. The comparison is scoped
// to the PUT body's own "configuration" key, not the full three-bucket GET
// document, so an identical-configuration resubmission actually reaches the
// fast path instead of falling through to the If-Match check below it.
func TestPutEqualToCurrentStateReturnsOKRegardlessOfIfMatch(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()
	client := ts.Client()

	createBody := `{"configuration": {"name": "vrf-a", "tag": "blue"}}`
	resp, err := client.Post(ts.URL+"/rest/v1/system/vrfs", "application/json", strings.NewReader(createBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	location := resp.Header.Get("Location")
	require.NotEmpty(t, location)

	sameBody := `{"configuration": {"name": "vrf-a", "tag": "blue"}}`
	putReq, err := http.NewRequest(http.MethodPut, ts.URL+location, strings.NewReader(sameBody))
	require.NoError(t, err)
	putReq.Header.Set("Content-Type", "application/json")
	putReq.Header.Set("If-Match", `"stale-etag-that-would-otherwise-fail"`)
	putResp, err := client.Do(putReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, putResp.StatusCode, "identical configuration must short-circuit to 200 before the If-Match check runs")

	// A changed body with a stale If-Match must still be rejected: the
	// equal-state fast path must not swallow every PUT unconditionally.
	changedBody := `{"configuration": {"name": "vrf-a", "tag": "green"}}`
	mismatchReq, err := http.NewRequest(http.MethodPut, ts.URL+location, strings.NewReader(changedBody))
	require.NoError(t, err)
	mismatchReq.Header.Set("Content-Type", "application/json")
	mismatchReq.Header.Set("If-Match", `"stale-etag-that-would-otherwise-fail"`)
	mismatchResp, err := client.Do(mismatchReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusPreconditionFailed, mismatchResp.StatusCode)

	getResp, err := client.Get(ts.URL + location)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&body))
	config, _ := body["configuration"].(map[string]any)
	require.Equal(t, "blue", config["tag"], "the rejected PUT must not have been applied")
}

func TestServiceUnavailableWhenDisconnected(t *testing.T) {
	server, db := newTestServer(t)
	db.SetConnected(false)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/rest/v1/system/vrfs")
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
