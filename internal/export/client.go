package export

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "time"

    "routeops/internal/model"
)

// Client uploads both approval artifacts to the external object-storage
// collaborator in a single call, so an approval either records both URLs or
// records nothing.
type Client struct {
    BaseURL string
    HTTP    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
    if timeout <= 0 {
        timeout = 30 * time.Second
    }
    return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

type uploadRequest struct {
    Date            string          `json:"date"`
    Session         string          `json:"session"`
    Plan            model.RoutePlan `json:"plan"`
    SpreadsheetName string          `json:"spreadsheetName"`
    Spreadsheet     []byte          `json:"spreadsheetCsv"` // base64 over the wire
    ManifestName    string          `json:"manifestName"`
    Manifest        []byte          `json:"manifestTxt"`
}

// Export renders the spreadsheet and manifest for the plan and stores them,
// returning the download locations.
func (c *Client) Export(ctx context.Context, plan model.RoutePlan) (model.ExportResult, error) {
    sheet, err := RenderSpreadsheet(plan)
    if err != nil {
        return model.ExportResult{}, err
    }
    req := uploadRequest{
        Date:            plan.Key.Date,
        Session:         string(plan.Key.Session),
        Plan:            plan,
        SpreadsheetName: fmt.Sprintf("routes_%s_%s.csv", plan.Key.Date, plan.Key.Session),
        Spreadsheet:     sheet,
        ManifestName:    fmt.Sprintf("manifest_%s_%s.txt", plan.Key.Date, plan.Key.Session),
        Manifest:        RenderManifest(plan),
    }
    body, err := json.Marshal(req)
    if err != nil {
        return model.ExportResult{}, err
    }
    hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/exports", bytes.NewReader(body))
    if err != nil {
        return model.ExportResult{}, err
    }
    hreq.Header.Set("Content-Type", "application/json")
    resp, err := c.HTTP.Do(hreq)
    if err != nil {
        return model.ExportResult{}, &model.ServiceError{Service: "export-storage", Message: err.Error()}
    }
    defer func() { _ = resp.Body.Close() }()
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        var pb struct {
            Message  string   `json:"message"`
            Warnings []string `json:"warnings"`
        }
        _ = json.NewDecoder(resp.Body).Decode(&pb)
        if pb.Message == "" {
            pb.Message = http.StatusText(resp.StatusCode)
        }
        return model.ExportResult{}, &model.ServiceError{Service: "export-storage", Status: resp.StatusCode, Message: pb.Message, Warnings: pb.Warnings}
    }
    var out model.ExportResult
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return model.ExportResult{}, &model.ServiceError{Service: "export-storage", Message: "bad response payload: " + err.Error()}
    }
    if out.SpreadsheetURL == "" || out.ManifestURL == "" {
        return model.ExportResult{}, &model.ServiceError{Service: "export-storage", Message: "storage returned incomplete artifact set"}
    }
    if out.SpreadsheetName == "" {
        out.SpreadsheetName = req.SpreadsheetName
    }
    if out.ManifestName == "" {
        out.ManifestName = req.ManifestName
    }
    return out, nil
}
