package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RuleResponse — правило группы из API.
type RuleResponse struct {
	ID       string `json:"id"`
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
	Order    int    `json:"order"`
}

// GroupResponse — группа из API.
type GroupResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	MatchType string         `json:"match_type"`
	Rules     []RuleResponse `json:"rules"`
	IsActive  bool           `json:"is_active"`
	Priority  int            `json:"priority"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// WorkflowResponse — workflow из API.
type WorkflowResponse struct {
	ID                   string         `json:"id"`
	GroupID              string         `json:"group_id"`
	Name                 string         `json:"name"`
	TaskType             string         `json:"task_type"`
	Parameters           map[string]any `json:"parameters,omitempty"`
	ScheduleType         string         `json:"schedule_type"`
	ScheduleConfig       map[string]any `json:"schedule_config,omitempty"`
	RateLimit            int            `json:"rate_limit"`
	MaxConcurrent        int            `json:"max_concurrent"`
	RetryCount           int            `json:"retry_count"`
	RetryDelayMinutes    int            `json:"retry_delay_minutes"`
	StopOnFailurePercent int            `json:"stop_on_failure_percent"`
	RunOncePerDevice     bool           `json:"run_once_per_device"`
	DependsOnWorkflowID  string         `json:"depends_on_workflow_id,omitempty"`
	Status               string         `json:"status"`
	NextEligibleAt       string         `json:"next_eligible_at,omitempty"`
	CreatedAt            string         `json:"created_at"`
	UpdatedAt            string         `json:"updated_at"`
}

// ExecutionResponse — execution из API.
type ExecutionResponse struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	DeviceID    string         `json:"device_id"`
	TaskRef     string         `json:"task_ref,omitempty"`
	Status      string         `json:"status"`
	Attempt     int            `json:"attempt"`
	ScheduledAt string         `json:"scheduled_at"`
	StartedAt   string         `json:"started_at,omitempty"`
	CompletedAt string         `json:"completed_at,omitempty"`
	NextRetryAt string         `json:"next_retry_at,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	UpdatedAt   string         `json:"updated_at"`
}

// ProgressResponse — сводка по executions workflow из API.
type ProgressResponse struct {
	Pending    int `json:"pending"`
	Queued     int `json:"queued"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// RetryFailedResponse — результат массового повтора из API.
type RetryFailedResponse struct {
	Rearmed int `json:"rearmed"`
}

// LogEntryResponse — запись журнала активности из API.
type LogEntryResponse struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	DeviceID   string         `json:"device_id,omitempty"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Context    map[string]any `json:"context,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

// DeviceResponse — снимок устройства из API.
type DeviceResponse struct {
	DeviceID        string   `json:"device_id"`
	OUI             string   `json:"oui"`
	Manufacturer    string   `json:"manufacturer"`
	ProductClass    string   `json:"product_class"`
	SoftwareVersion string   `json:"software_version"`
	HardwareVersion string   `json:"hardware_version"`
	SerialNumber    string   `json:"serial_number"`
	IPAddress       string   `json:"ip_address"`
	Online          bool     `json:"online"`
	SubscriberID    string   `json:"subscriber_id,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	CreatedAt       string   `json:"created_at"`
}

// --- Request types ---

// RuleRequest — правило в запросе создания/обновления группы.
type RuleRequest struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
	Order    int    `json:"order"`
}

// CreateGroupRequest — создание группы.
type CreateGroupRequest struct {
	Name      string        `json:"name"`
	MatchType string        `json:"match_type,omitempty"`
	Rules     []RuleRequest `json:"rules"`
	IsActive  *bool         `json:"is_active,omitempty"`
	Priority  int           `json:"priority,omitempty"`
}

// UpdateGroupRequest — обновление группы.
type UpdateGroupRequest struct {
	Name      *string        `json:"name,omitempty"`
	MatchType *string        `json:"match_type,omitempty"`
	Rules     *[]RuleRequest `json:"rules,omitempty"`
	IsActive  *bool          `json:"is_active,omitempty"`
	Priority  *int           `json:"priority,omitempty"`
}

// CreateWorkflowRequest — создание workflow.
type CreateWorkflowRequest struct {
	GroupID              string         `json:"group_id"`
	Name                 string         `json:"name"`
	TaskType             string         `json:"task_type"`
	Parameters           map[string]any `json:"parameters,omitempty"`
	ScheduleType         string         `json:"schedule_type,omitempty"`
	ScheduleConfig       map[string]any `json:"schedule_config,omitempty"`
	RateLimit            int            `json:"rate_limit,omitempty"`
	MaxConcurrent        int            `json:"max_concurrent,omitempty"`
	RetryCount           int            `json:"retry_count,omitempty"`
	RetryDelayMinutes    int            `json:"retry_delay_minutes,omitempty"`
	StopOnFailurePercent int            `json:"stop_on_failure_percent,omitempty"`
	RunOncePerDevice     bool           `json:"run_once_per_device,omitempty"`
	DependsOnWorkflowID  string         `json:"depends_on_workflow_id,omitempty"`
}

// ListExecutionsOpts — параметры фильтрации executions.
type ListExecutionsOpts struct {
	WorkflowID string
	DeviceID   string
	Status     string
	Limit      int
}

// ListLogOpts — параметры фильтрации журнала.
type ListLogOpts struct {
	WorkflowID string
	DeviceID   string
	Level      string
	Limit      int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для FleetACS API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Groups ---

// ListGroups возвращает все группы.
func (c *Client) ListGroups() ([]GroupResponse, error) {
	var groups []GroupResponse
	err := c.list("/api/v1/groups", nil, &groups)
	return groups, err
}

// CreateGroup создаёт новую группу.
func (c *Client) CreateGroup(req CreateGroupRequest) (*GroupResponse, error) {
	var group GroupResponse
	err := c.post("/api/v1/groups", req, &group)
	return &group, err
}

// GetGroup возвращает группу по ID.
func (c *Client) GetGroup(id string) (*GroupResponse, error) {
	var group GroupResponse
	err := c.get("/api/v1/groups/"+id, &group)
	return &group, err
}

// UpdateGroup обновляет группу.
func (c *Client) UpdateGroup(id string, req UpdateGroupRequest) (*GroupResponse, error) {
	var group GroupResponse
	err := c.put("/api/v1/groups/"+id, req, &group)
	return &group, err
}

// DeleteGroup удаляет группу вместе с workflow и executions.
func (c *Client) DeleteGroup(id string) error {
	return c.delete("/api/v1/groups/" + id)
}

// PreviewGroupDevices возвращает устройства, подходящие под группу.
func (c *Client) PreviewGroupDevices(id string) ([]DeviceResponse, error) {
	var devices []DeviceResponse
	err := c.list("/api/v1/groups/"+id+"/devices", nil, &devices)
	return devices, err
}

// --- Workflows ---

// ListWorkflows возвращает workflow. Если groupID не пустой — фильтрует.
func (c *Client) ListWorkflows(groupID string) ([]WorkflowResponse, error) {
	params := url.Values{}
	if groupID != "" {
		params.Set("group_id", groupID)
	}

	var workflows []WorkflowResponse
	err := c.list("/api/v1/workflows", params, &workflows)
	return workflows, err
}

// CreateWorkflow создаёт workflow.
func (c *Client) CreateWorkflow(req CreateWorkflowRequest) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.post("/api/v1/workflows", req, &wf)
	return &wf, err
}

// GetWorkflow возвращает workflow по ID.
func (c *Client) GetWorkflow(id string) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.get("/api/v1/workflows/"+id, &wf)
	return &wf, err
}

// DeleteWorkflow удаляет workflow вместе с executions.
func (c *Client) DeleteWorkflow(id string) error {
	return c.delete("/api/v1/workflows/" + id)
}

// ActivateWorkflow переводит workflow в ACTIVE.
func (c *Client) ActivateWorkflow(id string) (*WorkflowResponse, error) {
	return c.workflowAction(id, "activate")
}

// PauseWorkflow приостанавливает workflow.
func (c *Client) PauseWorkflow(id string) (*WorkflowResponse, error) {
	return c.workflowAction(id, "pause")
}

// ResumeWorkflow возобновляет приостановленный workflow.
func (c *Client) ResumeWorkflow(id string) (*WorkflowResponse, error) {
	return c.workflowAction(id, "resume")
}

// CancelWorkflow отменяет workflow.
func (c *Client) CancelWorkflow(id string) (*WorkflowResponse, error) {
	return c.workflowAction(id, "cancel")
}

func (c *Client) workflowAction(id, action string) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.post("/api/v1/workflows/"+id+"/"+action, nil, &wf)
	return &wf, err
}

// RetryFailed массово перевзводит FAILED executions workflow.
func (c *Client) RetryFailed(id string) (*RetryFailedResponse, error) {
	var result RetryFailedResponse
	err := c.post("/api/v1/workflows/"+id+"/retry-failed", nil, &result)
	return &result, err
}

// GetProgress возвращает сводку по executions workflow.
func (c *Client) GetProgress(id string) (*ProgressResponse, error) {
	var progress ProgressResponse
	err := c.get("/api/v1/workflows/"+id+"/progress", &progress)
	return &progress, err
}

// --- Executions ---

// ListExecutions возвращает executions с фильтрацией.
func (c *Client) ListExecutions(opts ListExecutionsOpts) ([]ExecutionResponse, error) {
	params := url.Values{}
	if opts.WorkflowID != "" {
		params.Set("workflow_id", opts.WorkflowID)
	}
	if opts.DeviceID != "" {
		params.Set("device_id", opts.DeviceID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var execs []ExecutionResponse
	err := c.list("/api/v1/executions", params, &execs)
	return execs, err
}

// GetExecution возвращает execution по ID.
func (c *Client) GetExecution(id string) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.get("/api/v1/executions/"+id, &exec)
	return &exec, err
}

// --- Activity log ---

// ListActivityLog возвращает журнал активности с фильтрацией.
func (c *Client) ListActivityLog(opts ListLogOpts) ([]LogEntryResponse, error) {
	params := url.Values{}
	if opts.WorkflowID != "" {
		params.Set("workflow_id", opts.WorkflowID)
	}
	if opts.DeviceID != "" {
		params.Set("device_id", opts.DeviceID)
	}
	if opts.Level != "" {
		params.Set("level", opts.Level)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var entries []LogEntryResponse
	err := c.list("/api/v1/activity-log", params, &entries)
	return entries, err
}

// --- Devices ---

// ListDevices возвращает инвентарь устройств.
func (c *Client) ListDevices() ([]DeviceResponse, error) {
	var devices []DeviceResponse
	err := c.list("/api/v1/devices", nil, &devices)
	return devices, err
}

// GetDevice возвращает снимок устройства.
func (c *Client) GetDevice(id string) (*DeviceResponse, error) {
	var device DeviceResponse
	err := c.get("/api/v1/devices/"+id, &device)
	return &device, err
}

// SendDeviceConnect отправляет событие выхода устройства на связь.
func (c *Client) SendDeviceConnect(deviceID string) error {
	body := map[string]string{"device_id": deviceID}
	return c.post("/api/v1/events/device-connect", body, nil)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
