package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/pocrop/internal/server"
	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"
)

// HTTPTestServerWrapper runs the HTTP server in-process.
type HTTPTestServerWrapper struct {
	Server *httptest.Server
	App    *server.Server
	URL    string
}

// WebSocketClient is one interactive editing session.
type WebSocketClient struct {
	conn *websocket.Conn
}

// Close ends the session.
func (c *WebSocketClient) Close() {
	_ = c.conn.Close()
}

// RegisterServerSteps registers HTTP and WebSocket steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the server is running$`, testCtx.theServerIsRunning)
	sc.Step(`^the server is running with CORS origin "([^"]*)"$`, testCtx.theServerIsRunningWithCORS)
	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I send an OPTIONS request to "([^"]*)"$`, testCtx.iSendOptions)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)"$`, testCtx.iUpload)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)" with fields:$`, testCtx.iUploadWithFields)
	sc.Step(`^I POST the record "([^"]*)" to "([^"]*)"$`, testCtx.iPostRecord)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseJSONFieldShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)

	sc.Step(`^I connect to the session endpoint$`, testCtx.iConnectToTheSessionEndpoint)
	sc.Step(`^I open a session with "([^"]*)"$`, testCtx.iOpenASession)
	sc.Step(`^I send the session command "([^"]*)"$`, testCtx.iSendSessionCommand)
	sc.Step(`^I send the session command "([^"]*)" with:$`, testCtx.iSendSessionCommandWith)
	sc.Step(`^the session command should succeed$`, testCtx.theSessionCommandShouldSucceed)
	sc.Step(`^the session command should fail with "([^"]*)"$`, testCtx.theSessionCommandShouldFailWith)
	sc.Step(`^the session result field "([^"]*)" should be "([^"]*)"$`, testCtx.theSessionResultFieldShouldBe)
}

func (testCtx *TestContext) theServerIsRunning() error {
	return testCtx.startServer("*")
}

func (testCtx *TestContext) theServerIsRunningWithCORS(origin string) error {
	return testCtx.startServer(origin)
}

func (testCtx *TestContext) startServer(origin string) error {
	if testCtx.HTTPTestServer != nil {
		return nil
	}
	cfg := server.DefaultConfig()
	cfg.CORSOrigin = origin
	cfg.MaxUploadMB = 5
	cfg.Editor.TempDir = testCtx.TempDir

	app, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	mux := http.NewServeMux()
	app.SetupRoutes(mux)
	ts := httptest.NewServer(mux)

	testCtx.HTTPTestServer = &HTTPTestServerWrapper{Server: ts, App: app, URL: ts.URL}
	return nil
}

// StopServer shuts the in-process server down.
func (testCtx *TestContext) StopServer() error {
	if testCtx.HTTPTestServer == nil {
		return nil
	}
	testCtx.HTTPTestServer.Server.Close()
	err := testCtx.HTTPTestServer.App.Close()
	testCtx.HTTPTestServer = nil
	return err
}

func (testCtx *TestContext) serverURL(path string) (string, error) {
	if testCtx.HTTPTestServer == nil {
		return "", errors.New("server is not running")
	}
	return testCtx.HTTPTestServer.URL + path, nil
}

func (testCtx *TestContext) do(req *http.Request) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = body
	testCtx.LastHTTPHeaders = map[string]string{}
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

func (testCtx *TestContext) iGET(path string) error {
	url, err := testCtx.serverURL(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

func (testCtx *TestContext) iSendOptions(path string) error {
	url, err := testCtx.serverURL(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodOptions, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	return testCtx.do(req)
}

func (testCtx *TestContext) iUpload(file, path string) error {
	return testCtx.upload(file, path, nil)
}

func (testCtx *TestContext) iUploadWithFields(file, path string, table *godog.Table) error {
	fields := map[string]string{}
	for _, row := range table.Rows {
		if len(row.Cells) != 2 {
			return errors.New("field table rows must have a name and a value")
		}
		fields[row.Cells[0].Value] = row.Cells[1].Value
	}
	return testCtx.upload(file, path, fields)
}

func (testCtx *TestContext) upload(file, path string, fields map[string]string) error {
	url, err := testCtx.serverURL(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(testCtx.Path(file))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filepath.Base(file))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	for k, v := range fields {
		if strings.HasPrefix(v, "@") {
			content, err := os.ReadFile(testCtx.Path(v[1:]))
			if err != nil {
				return err
			}
			v = string(content)
		}
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return testCtx.do(req)
}

func (testCtx *TestContext) iPostRecord(file, path string) error {
	url, err := testCtx.serverURL(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(testCtx.Path(file))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return testCtx.do(req)
}

func (testCtx *TestContext) theResponseStatusShouldBe(code int) error {
	if testCtx.LastHTTPStatusCode != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(expected string) error {
	if !bytes.Contains(testCtx.LastHTTPResponse, []byte(expected)) {
		return fmt.Errorf("response does not contain %q: %s", expected, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseJSONFieldShouldBe(path, expected string) error {
	var data interface{}
	if err := json.Unmarshal(testCtx.LastHTTPResponse, &data); err != nil {
		return fmt.Errorf("response is not JSON: %w", err)
	}
	v, err := lookupJSONPath(data, path)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != expected {
		return fmt.Errorf("response field %s is %q, expected %q", path, got, expected)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, expected string) error {
	if got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; got != expected {
		return fmt.Errorf("header %s is %q, expected %q", name, got, expected)
	}
	return nil
}

func (testCtx *TestContext) iConnectToTheSessionEndpoint() error {
	url, err := testCtx.serverURL("/ws")
	if err != nil {
		return err
	}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	_ = resp.Body.Close()
	testCtx.WebSocket = &WebSocketClient{conn: conn}
	return nil
}

func (testCtx *TestContext) iOpenASession(file string) error {
	if err := testCtx.iConnectToTheSessionEndpoint(); err != nil {
		return err
	}
	data, err := os.ReadFile(testCtx.Path(file))
	if err != nil {
		return err
	}
	if err := testCtx.sendSession(server.WebSocketRequest{Type: "open", Image: data, Filename: filepath.Base(file)}); err != nil {
		return err
	}
	return testCtx.theSessionCommandShouldSucceed()
}

func (testCtx *TestContext) sendSession(req server.WebSocketRequest) error {
	if testCtx.WebSocket == nil {
		return errors.New("no session open")
	}
	conn := testCtx.WebSocket.conn
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("failed to send %s: %w", req.Type, err)
	}
	var resp map[string]interface{}
	if err := conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("failed to read %s response: %w", req.Type, err)
	}
	testCtx.LastWSResponse = resp
	testCtx.LastWSErrorType, _ = resp["error_type"].(string)
	return nil
}

func (testCtx *TestContext) iSendSessionCommand(typ string) error {
	return testCtx.sendSession(server.WebSocketRequest{Type: typ})
}

// iSendSessionCommandWith merges a JSON doc string into the request.
func (testCtx *TestContext) iSendSessionCommandWith(typ string, doc *godog.DocString) error {
	var req server.WebSocketRequest
	if err := json.Unmarshal([]byte(doc.Content), &req); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	req.Type = typ
	return testCtx.sendSession(req)
}

func (testCtx *TestContext) theSessionCommandShouldSucceed() error {
	if status, _ := testCtx.LastWSResponse["status"].(string); status != "completed" {
		return fmt.Errorf("session command failed: %v", testCtx.LastWSResponse["error"])
	}
	return nil
}

func (testCtx *TestContext) theSessionCommandShouldFailWith(errorType string) error {
	if status, _ := testCtx.LastWSResponse["status"].(string); status != "error" {
		return fmt.Errorf("session command succeeded: %v", testCtx.LastWSResponse)
	}
	if testCtx.LastWSErrorType != errorType {
		return fmt.Errorf("error type is %q, expected %q", testCtx.LastWSErrorType, errorType)
	}
	return nil
}

func (testCtx *TestContext) theSessionResultFieldShouldBe(path, expected string) error {
	v, err := lookupJSONPath(testCtx.LastWSResponse["result"], path)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != expected {
		return fmt.Errorf("result field %s is %q, expected %q", path, got, expected)
	}
	return nil
}
