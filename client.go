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
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"
)

// Endpoint is one operation of the Impex request dialect.
type Endpoint int

const (
	EndpointAuth Endpoint = iota
	EndpointObsTree
	EndpointListTimetables
	EndpointListCatalogs
	EndpointListParameters
	EndpointGetTimetable
	EndpointGetCatalog
	EndpointGetParameter
	EndpointGetStatus
	EndpointIsAlive
)

// path returns the conventional script name serving the endpoint.
func (e Endpoint) path() string {
	switch e {
	case EndpointAuth:
		return "auth.php"
	case EndpointObsTree:
		return "getObsDataTree.php"
	case EndpointListTimetables:
		return "getTimeTablesList.php"
	case EndpointListCatalogs:
		return "getCatalogsList.php"
	case EndpointListParameters:
		return "getParameterList.php"
	case EndpointGetTimetable:
		return "getTimeTable.php"
	case EndpointGetCatalog:
		return "getCatalog.php"
	case EndpointGetParameter:
		return "getParameter.php"
	case EndpointGetStatus:
		return "getStatus.php"
	case EndpointIsAlive:
		return "isAlive.php"
	}
	panic(fmt.Errorf("impex: invalid endpoint %d", e))
}

// Credentials identify a provider user account.
type Credentials struct {
	UserID   string
	Password string
}

// Valid reports whether both fields are set.
func (c Credentials) Valid() bool { return c.UserID != "" && c.Password != "" }

// DefaultTimeout is the HTTP timeout applied when a Client does not carry
// its own http.Client.
const DefaultTimeout = 60 * time.Second

// statusPollInterval is the delay between get-status polls for
// long-running parameter requests. It is a variable so tests can shorten it.
var statusPollInterval = 10 * time.Second

// maxStatusPolls bounds get-status polling.
const maxStatusPolls = 60

// Client speaks the Impex request dialect to one provider.
type Client struct {
	Provider     string
	ServerURL    string
	Credentials  Credentials
	OutputFormat string // "CDF" or "ASCII"
	TimeFormat   string
	HTTPClient   *http.Client

	capabilities map[Endpoint]bool
}

// NewClient creates a client for the named provider at serverURL
// supporting the given endpoints. When capabilities is empty, the obs-tree
// and get-parameter endpoints are assumed.
func NewClient(provider, serverURL string, capabilities []Endpoint, creds Credentials, outputFormat string) *Client {
	if len(capabilities) == 0 {
		capabilities = []Endpoint{EndpointObsTree, EndpointGetParameter}
	}
	caps := make(map[Endpoint]bool, len(capabilities))
	for _, e := range capabilities {
		caps[e] = true
	}
	if outputFormat == "" {
		outputFormat = "CDF"
	}
	return &Client{
		Provider:     provider,
		ServerURL:    strings.TrimRight(serverURL, "/"),
		Credentials:  creds,
		OutputFormat: outputFormat,
		TimeFormat:   "UNIXTIME",
		HTTPClient:   &http.Client{Timeout: DefaultTimeout},
		capabilities: caps,
	}
}

// IsCapable reports whether the provider serves endpoint e.
func (c *Client) IsCapable(e Endpoint) bool { return c.capabilities[e] }

func (c *Client) endpointURL(e Endpoint) string {
	return c.ServerURL + "/" + e.path()
}

// get performs one HTTP GET with retry on transport errors and server-side
// failures. Retry lives here, at the transport boundary; the retrieval
// engine never retries chunks itself.
func (c *Client) get(rawURL string, params url.Values, headers map[string]string) ([]byte, error) {
	u := rawURL
	if len(params) > 0 {
		u = rawURL + "?" + params.Encode()
	}
	var body []byte
	operation := func() error {
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("impex: %s returned status %d", rawURL, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("impex: %s returned status %d", rawURL, resp.StatusCode))
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	err := backoff.RetryNotify(operation, b, func(err error, d time.Duration) {
		log.Debugf("%v: retrying in %v", err, d)
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Alive reports whether the provider answers its liveness endpoint (or its
// base URL when the endpoint is not supported).
func (c *Client) Alive() bool {
	u := c.ServerURL + "/"
	if c.IsCapable(EndpointIsAlive) {
		u = c.endpointURL(EndpointIsAlive)
	}
	resp, err := c.HTTPClient.Get(u)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// authToken fetches a request token from the auth endpoint.
func (c *Client) authToken() (string, error) {
	body, err := c.get(c.endpointURL(EndpointAuth), nil, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *Client) credentialParams(params url.Values) error {
	if !c.Credentials.Valid() {
		return &MissingCredentialsError{Provider: c.Provider}
	}
	params.Set("userID", c.Credentials.UserID)
	params.Set("password", c.Credentials.Password)
	return nil
}

// indirect performs a request whose response is the location of the actual
// document (sometimes wrapped in an HTML anchor), then follows it.
func (c *Client) indirect(e Endpoint, params url.Values) ([]byte, error) {
	body, err := c.get(c.endpointURL(e), params, nil)
	if err != nil {
		return nil, err
	}
	next := strings.TrimSpace(string(body))
	if strings.Contains(next, "<") && strings.Contains(next, ">") {
		next = strings.Split(strings.Split(next, ">")[1], "<")[0]
	}
	return c.get(next, nil, nil)
}

// ObsDataTree fetches the provider's observation data tree XML.
func (c *Client) ObsDataTree() ([]byte, error) {
	return c.indirect(EndpointObsTree, url.Values{})
}

// TimeTableList fetches the timetable tree XML, user-scoped when
// useCredentials is set.
func (c *Client) TimeTableList(useCredentials bool) ([]byte, error) {
	params := url.Values{}
	if useCredentials {
		if err := c.credentialParams(params); err != nil {
			return nil, err
		}
	}
	return c.indirect(EndpointListTimetables, params)
}

// CatalogList fetches the catalog tree XML, user-scoped when
// useCredentials is set.
func (c *Client) CatalogList(useCredentials bool) ([]byte, error) {
	params := url.Values{}
	if useCredentials {
		if err := c.credentialParams(params); err != nil {
			return nil, err
		}
	}
	return c.indirect(EndpointListCatalogs, params)
}

// DerivedParameterList fetches the user's derived parameter tree XML.
// It always requires credentials.
func (c *Client) DerivedParameterList() ([]byte, error) {
	params := url.Values{}
	if err := c.credentialParams(params); err != nil {
		return nil, err
	}
	return c.get(c.endpointURL(EndpointListParameters), params, nil)
}

// parameterResponse is the JSON answer of a get-parameter call.
type parameterResponse struct {
	Success      bool   `json:"success"`
	Status       string `json:"status"`
	DataFileURLs string `json:"dataFileURLs"`
	ID           string `json:"id"`
}

// ParameterURL requests parameterID over r and returns the URL of the
// produced data file. Long-running requests are polled through the status
// endpoint when the provider supports it.
func (c *Client) ParameterURL(r TimeRange, parameterID, format string, useCredentials bool, headers map[string]string) (string, error) {
	if format == "" {
		format = c.OutputFormat
	}
	params := url.Values{}
	params.Set("startTime", r.Start.UTC().Format("2006-01-02T15:04:05Z"))
	params.Set("stopTime", r.Stop.UTC().Format("2006-01-02T15:04:05Z"))
	params.Set("parameterID", parameterID)
	params.Set("outputFormat", format)
	if c.TimeFormat != "" {
		params.Set("timeFormat", c.TimeFormat)
	}
	if useCredentials {
		if err := c.credentialParams(params); err != nil {
			return "", err
		}
	}
	if c.IsCapable(EndpointAuth) {
		token, err := c.authToken()
		if err != nil {
			return "", err
		}
		params.Set("token", token)
	}

	body, err := c.get(c.endpointURL(EndpointGetParameter), params, headers)
	if err != nil {
		return "", err
	}

	var resp parameterResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		// Some dialects answer with the bare URL.
		return strings.TrimSpace(string(body)), nil
	}
	if resp.Success && resp.DataFileURLs != "" {
		log.Debugf("get-parameter success: %s", resp.DataFileURLs)
		return resp.DataFileURLs, nil
	}
	if resp.Success && resp.Status == "in progress" && c.IsCapable(EndpointGetStatus) {
		log.Warn("request duration is too long, consider reducing time range")
		return c.pollStatus(resp.ID)
	}
	return "", fmt.Errorf("impex: get-parameter failed for %s: %s", parameterID, strings.TrimSpace(string(body)))
}

// pollStatus polls the status endpoint until the server reports the
// requested file is ready.
func (c *Client) pollStatus(id string) (string, error) {
	params := url.Values{}
	params.Set("id", id)
	for i := 0; i < maxStatusPolls; i++ {
		time.Sleep(statusPollInterval)
		body, err := c.get(c.endpointURL(EndpointGetStatus), params, nil)
		if err != nil {
			return "", err
		}
		var resp parameterResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("impex: decoding get-status response: %v", err)
		}
		if resp.Status == "done" {
			return resp.DataFileURLs, nil
		}
	}
	return "", fmt.Errorf("impex: request %s still not ready after %d polls", id, maxStatusPolls)
}

// TimetableFile requests timetable id and returns the raw document.
func (c *Client) TimetableFile(id string, useCredentials bool) ([]byte, error) {
	params := url.Values{}
	params.Set("ttID", id)
	if useCredentials {
		if err := c.credentialParams(params); err != nil {
			return nil, err
		}
	}
	return c.fetchDocument(EndpointGetTimetable, params)
}

// CatalogFile requests catalog id and returns the raw document.
func (c *Client) CatalogFile(id string, useCredentials bool) ([]byte, error) {
	params := url.Values{}
	params.Set("catID", id)
	if useCredentials {
		if err := c.credentialParams(params); err != nil {
			return nil, err
		}
	}
	return c.fetchDocument(EndpointGetCatalog, params)
}

// fetchDocument performs a request that answers either with the document
// itself or with the URL it was written to.
func (c *Client) fetchDocument(e Endpoint, params url.Values) ([]byte, error) {
	body, err := c.get(c.endpointURL(e), params, nil)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		return c.get(text, nil, nil)
	}
	return body, nil
}

// Download fetches the produced data file at fileURL.
func (c *Client) Download(fileURL string) ([]byte, error) {
	return c.get(fileURL, nil, nil)
}
