package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/biocore-hpc/seqjob/internal/constants"
	"github.com/biocore-hpc/seqjob/internal/errs"
	"github.com/biocore-hpc/seqjob/internal/logging"
)

// RESTConfig configures a RESTQuerier.
type RESTConfig struct {
	// BaseURL of slurmrestd, e.g. http://localhost:6820.
	BaseURL    string
	APIVersion string
	User       string
	Token      string
	// RequestsPerSecond throttles calls towards slurmrestd.
	RequestsPerSecond float64
	Burst             int
	// Retries and RetryDelay mirror the squeue retry policy.
	Retries    int
	RetryDelay time.Duration
	// HTTPClient overrides the underlying transport (tests).
	HTTPClient *http.Client
}

// RESTQuerier implements Querier against the slurmrestd JSON API.
type RESTQuerier struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	version string
	user    string
	token   string
	logger  *logging.Logger
}

// retryLogger adapts the engine logger to retryablehttp.LeveledLogger
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Request-level chatter stays out of the log
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// NewRESTQuerier creates a slurmrestd-backed Querier.
func NewRESTQuerier(cfg RESTConfig, logger *logging.Logger) (*RESTQuerier, error) {
	if cfg.BaseURL == "" {
		return nil, errs.Configf("slurmrestd url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, &errs.ConfigurationError{Msg: "invalid slurmrestd url", Err: err}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = constants.DefaultRESTVersion
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = constants.DefaultRESTRatePerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = constants.DefaultRESTBurst
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	log := logger.Named("slurmrestd")

	retryClient := retryablehttp.NewClient()
	if cfg.HTTPClient != nil {
		retryClient.HTTPClient = cfg.HTTPClient
	}
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = cfg.RetryDelay
	retryClient.RetryWaitMax = cfg.RetryDelay
	retryClient.Backoff = fixedBackoff
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = &retryLogger{logger: log}

	return &RESTQuerier{
		client:  retryClient.StandardClient(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		version: cfg.APIVersion,
		user:    cfg.User,
		token:   cfg.Token,
		logger:  log,
	}, nil
}

func fixedBackoff(minWait, _ time.Duration, _ int, _ *http.Response) time.Duration {
	return minWait
}

// restJobsResponse is the subset of the slurmrestd job response we read.
type restJobsResponse struct {
	Jobs   []restJob   `json:"jobs"`
	Errors []restError `json:"errors"`
}

type restJob struct {
	JobID       int64           `json:"job_id"`
	ArrayJobID  restNumber      `json:"array_job_id"`
	ArrayTaskID restNumber      `json:"array_task_id"`
	JobState    json.RawMessage `json:"job_state"`
}

type restError struct {
	Description string `json:"description"`
	Error       string `json:"error"`
}

// restNumber decodes both the plain integers of older API versions and the
// {"set": true, "number": N} objects of newer ones.
type restNumber struct {
	Set    bool
	Number int64
}

func (n *restNumber) UnmarshalJSON(data []byte) error {
	var plain int64
	if err := json.Unmarshal(data, &plain); err == nil {
		n.Set = plain != 0
		n.Number = plain
		return nil
	}
	var obj struct {
		Set    bool  `json:"set"`
		Number int64 `json:"number"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	n.Set = obj.Set
	n.Number = obj.Number
	return nil
}

func (j restJob) key() string {
	if j.ArrayJobID.Set && j.ArrayJobID.Number != 0 && j.ArrayTaskID.Set {
		return fmt.Sprintf("%d_%d", j.ArrayJobID.Number, j.ArrayTaskID.Number)
	}
	return strconv.FormatInt(j.JobID, 10)
}

// state reads job_state, which is a string in older API versions and a list
// of flags whose first entry is the base state in newer ones.
func (j restJob) state() State {
	var single string
	if err := json.Unmarshal(j.JobState, &single); err == nil {
		return ParseState(single)
	}
	var list []string
	if err := json.Unmarshal(j.JobState, &list); err == nil && len(list) > 0 {
		return ParseState(list[0])
	}
	return ""
}

// Query fetches every id from slurmrestd and merges the results.
func (q *RESTQuerier) Query(ctx context.Context, ids []string) (map[string]State, error) {
	if len(ids) == 0 {
		return nil, errs.Configf("query: at least one job id is required")
	}
	states := make(map[string]State)
	for _, id := range ids {
		if err := q.queryOne(ctx, id, states); err != nil {
			return nil, err
		}
	}
	return states, nil
}

func (q *RESTQuerier) queryOne(ctx context.Context, id string, into map[string]State) error {
	endpoint := fmt.Sprintf("%s/slurm/%s/job/%s", q.baseURL, q.version, url.PathEscape(id))

	if err := q.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter cancelled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &errs.ExecFailedError{Command: endpoint, ExitCode: -1, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if q.user != "" {
		req.Header.Set("X-SLURM-USER-NAME", q.user)
	}
	if q.token != "" {
		req.Header.Set("X-SLURM-USER-TOKEN", q.token)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return &errs.ExecFailedError{Command: endpoint, ExitCode: -1, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.ExecFailedError{Command: endpoint, ExitCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &errs.ExecFailedError{
			Command:  endpoint,
			ExitCode: resp.StatusCode,
			Stderr:   string(body),
		}
	}

	var parsed restJobsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &errs.ExecFailedError{
			Command:  endpoint,
			ExitCode: resp.StatusCode,
			Stdout:   string(body),
			Err:      fmt.Errorf("failed to decode slurmrestd response: %w", err),
		}
	}
	if len(parsed.Errors) > 0 && len(parsed.Jobs) == 0 {
		return &errs.ExecFailedError{
			Command:  endpoint,
			ExitCode: resp.StatusCode,
			Stderr:   parsed.Errors[0].Description,
		}
	}

	for _, job := range parsed.Jobs {
		s := job.state()
		if !s.IsKnown() {
			q.logger.Warn().Str("job_id", job.key()).Str("state", string(job.JobState)).
				Msg("Unknown scheduler state, treating as non-terminal")
		}
		into[job.key()] = s
	}
	return nil
}
