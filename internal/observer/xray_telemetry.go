package observer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// XrayTelemetry queries xray-core's stats API for per-user traffic
// counters, grounded on the teacher's internal/xray/client.go's
// GetUserStats query-name convention ("user>>>{email}>>>traffic>>>uplink").
type XrayTelemetry struct {
	endpoint   string
	port       int
	httpClient *http.Client
}

// NewXrayTelemetry constructs a telemetry client against xray-core's local
// stats API.
func NewXrayTelemetry(endpoint string, port int) *XrayTelemetry {
	return &XrayTelemetry{
		endpoint: endpoint,
		port:     port,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// UserCounters is one user's cumulative traffic counters.
type UserCounters struct {
	Login     string
	Downlink  int64
	Uplink    int64
}

type statQueryRequest struct {
	Name   string `json:"name"`
	Reset  bool   `json:"reset"`
}

type statQueryResponse struct {
	Stat struct {
		Value int64 `json:"value"`
	} `json:"stat"`
}

// Query returns the cumulative downlink/uplink counters for login. Either
// side is left at zero if xray-core has no stat for it yet (never-seen
// user), matching GetUserStats's tolerant error handling.
func (t *XrayTelemetry) Query(login string) (UserCounters, error) {
	counters := UserCounters{Login: login}

	downlink, err := t.queryStat(fmt.Sprintf("user>>>%s>>>traffic>>>downlink", login))
	if err == nil {
		counters.Downlink = downlink
	}
	uplink, err := t.queryStat(fmt.Sprintf("user>>>%s>>>traffic>>>uplink", login))
	if err == nil {
		counters.Uplink = uplink
	}
	return counters, nil
}

func (t *XrayTelemetry) queryStat(name string) (int64, error) {
	url := fmt.Sprintf("http://%s:%d/api/stats/query", t.endpoint, t.port)
	body, err := json.Marshal(statQueryRequest{Name: name})
	if err != nil {
		return 0, err
	}

	resp, err := t.httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	var parsed statQueryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, err
	}
	return parsed.Stat.Value, nil
}
