//go:build integration_test || all_tests

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/2beens/gymhrv/internal/report/layout"
	"github.com/2beens/gymhrv/internal/reports"
	"github.com/2beens/gymhrv/internal/sessions"
	"github.com/2beens/gymhrv/internal/store"
)

const rawIntervals = "812\n798\n0\n805\nnot-a-number\n830\n790\n"

func (s *IntegrationTestSuite) do(endpoint, method, path, contentType, body string) (int, []byte) {
	req, err := http.NewRequest(method, endpoint+path, strings.NewReader(body))
	s.Require().NoError(err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.httpClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp.StatusCode, respBody
}

func (s *IntegrationTestSuite) doJSON(method, path string, payload any) (int, []byte) {
	var buf bytes.Buffer
	s.Require().NoError(json.NewEncoder(&buf).Encode(payload))
	return s.do(serverEndpoint, method, path, "application/json", buf.String())
}

func (s *IntegrationTestSuite) resetState() {
	code, _ := s.do(serverEndpoint, "DELETE", "/report", "", "")
	s.Require().Equal(http.StatusOK, code)
	code, _ = s.do(serverEndpoint, "POST", "/dataset", "text/plain", rawIntervals)
	s.Require().Equal(http.StatusCreated, code)
}

func (s *IntegrationTestSuite) TestReportSurvivesRestart() {
	s.resetState()

	code, _ := s.doJSON("POST", "/report/analyses", map[string]string{"kindId": "rr_histogram"})
	s.Require().Equal(http.StatusCreated, code)
	code, _ = s.doJSON("POST", "/report/analyses", map[string]string{"kindId": "summary"})
	s.Require().Equal(http.StatusCreated, code)
	code, _ = s.do(serverEndpoint, "POST", "/report/pages", "", "")
	s.Require().Equal(http.StatusCreated, code)
	code, _ = s.doJSON("POST", "/report/analyses", map[string]string{"kindId": "poincare"})
	s.Require().Equal(http.StatusCreated, code)

	// same kind twice on one page is rejected
	code, _ = s.doJSON("POST", "/report/analyses", map[string]string{"kindId": "poincare"})
	s.Equal(http.StatusConflict, code)

	code, _ = s.doJSON("POST", "/dataset/exclusions/1", nil)
	s.Require().Equal(http.StatusOK, code)

	code, body := s.do(serverEndpoint, "GET", "/report", "", "")
	s.Require().Equal(http.StatusOK, code)
	var before layout.Report
	s.Require().NoError(json.Unmarshal(body, &before))
	s.Require().Len(before.Pages, 2)

	restartedPort := serverPort + 2
	restarted := s.startServer(context.Background(), restartedPort)
	defer restarted.GracefulShutdown()
	restartedEndpoint := fmt.Sprintf("http://%s:%d", serverHost, restartedPort)

	code, body = s.do(restartedEndpoint, "GET", "/report", "", "")
	s.Require().Equal(http.StatusOK, code)
	var after layout.Report
	s.Require().NoError(json.Unmarshal(body, &after))
	s.Equal(before, after)

	code, body = s.do(restartedEndpoint, "GET", "/dataset", "", "")
	s.Require().Equal(http.StatusOK, code)
	var info reports.DatasetInfo
	s.Require().NoError(json.Unmarshal(body, &info))
	s.Equal(5, info.Count)
	s.Equal([]int{1}, info.Excluded)
	s.Equal(4, info.Filtered)

	code, body = s.do(restartedEndpoint, "GET", "/report/analyses/rr_histogram-1/svg", "", "")
	s.Require().Equal(http.StatusOK, code)
	s.Contains(string(body), "<svg")
}

func (s *IntegrationTestSuite) TestSessionsLifecycle() {
	s.resetState()

	collectionPath := "/sessions/" + store.CollectionSessionsAdvanced
	code, body := s.doJSON("POST", collectionPath, sessions.SessionRecord{
		Kind:      sessions.KindAdvanced,
		Intervals: []float64{901, 915, 880, 0, 870},
		Notes:     "after leg day",
	})
	s.Require().Equal(http.StatusCreated, code)
	var saved struct {
		ID string `json:"id"`
	}
	s.Require().NoError(json.Unmarshal(body, &saved))
	s.Require().NotEmpty(saved.ID)

	code, body = s.do(serverEndpoint, "GET", "/sessions", "", "")
	s.Require().Equal(http.StatusOK, code)
	var list []sessions.SessionSummary
	s.Require().NoError(json.Unmarshal(body, &list))
	found := false
	for _, summary := range list {
		if summary.ID == saved.ID {
			found = true
			s.Equal(store.CollectionSessionsAdvanced, summary.Collection)
			s.Equal(5, summary.Intervals)
		}
	}
	s.True(found, "saved session missing from the listing")

	code, body = s.do(serverEndpoint, "POST", collectionPath+"/"+saved.ID+"/load", "", "")
	s.Require().Equal(http.StatusOK, code)
	var loaded map[string]int
	s.Require().NoError(json.Unmarshal(body, &loaded))
	s.Equal(4, loaded["loaded"])

	code, _ = s.do(serverEndpoint, "DELETE", collectionPath+"/"+saved.ID, "", "")
	s.Require().Equal(http.StatusNoContent, code)

	code, _ = s.do(serverEndpoint, "POST", collectionPath+"/"+saved.ID+"/load", "", "")
	s.Equal(http.StatusNotFound, code)

	code, _ = s.do(serverEndpoint, "POST", "/sessions/unknown_collection/x/load", "", "")
	s.Equal(http.StatusBadRequest, code)
}

func (s *IntegrationTestSuite) TestRateLimitedUploadsPass() {
	for range 5 {
		code, _ := s.do(serverEndpoint, "POST", "/dataset", "text/plain", rawIntervals)
		s.Require().Equal(http.StatusCreated, code)
	}
}
