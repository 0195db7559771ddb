package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/panwatch/panwatch/internal/core/domain"
)

// Probe outcome reasons. Terminal reasons are final; retryable ones get
// one more pass at the end of a run.
const (
	ReasonValid     = "链接有效"
	ReasonFormat    = "格式错误"
	ReasonDeadShare = "网盘链接失效"
	ReasonPageError = "页面错误"
	ReasonLimited   = "网盘限制"
	ReasonTimeout   = "网络超时"
	ReasonNetwork   = "网络错误"
	ReasonStatus    = "状态码错误"
	ReasonProbe     = "检测异常"
)

const (
	probeTimeout = 15 * time.Second

	// maxConsecutiveErrors trips the per-provider circuit breaker.
	maxConsecutiveErrors = 10

	maxRetries = 3
	retryPause = 2 * time.Second

	maxBodyBytes = 4 << 20
)

var retryableReasons = map[string]bool{
	ReasonTimeout: true,
	ReasonNetwork: true,
	ReasonStatus:  true,
	ReasonProbe:   true,
}

// Retryable reports whether a probe outcome is worth another attempt.
func Retryable(reason string) bool {
	return retryableReasons[reason]
}

// Result is the outcome of probing one URL.
type Result struct {
	URL          string
	Provider     string
	Valid        bool
	StatusCode   int
	ResponseTime float64
	Reason       string
	Err          string
}

// Validator probes share URLs over HTTP and classifies the outcome. A
// per-provider consecutive error counter short-circuits providers that
// start rejecting us.
type Validator struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu          sync.Mutex
	errorCounts map[string]int

	// delay and pause are swappable so tests run without sleeping.
	delay func(ctx context.Context, l Limits)
	pause time.Duration
}

func NewValidator(logger zerolog.Logger) *Validator {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	return &Validator{
		client: &http.Client{
			Timeout: probeTimeout,
			Jar:     jar,
		},
		limiter:     rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
		logger:      logger.With().Str("component", "linkcheck").Logger(),
		errorCounts: make(map[string]int),
		delay:       randomDelay,
		pause:       retryPause,
	}
}

func randomDelay(ctx context.Context, l Limits) {
	d := l.DelayMin + time.Duration(rand.Int63n(int64(l.DelayMax-l.DelayMin)+1))

	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func browserHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	// No br here, some error pages break behind Brotli.
	h.Set("Accept-Encoding", "gzip, deflate")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Cache-Control", "max-age=0")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")

	return h
}

func validFormat(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (v *Validator) errorCount(provider string) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.errorCounts[provider]
}

func (v *Validator) bumpError(provider string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.errorCounts[provider]++
}

func (v *Validator) resetError(provider string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.errorCounts[provider] = 0
}

// CheckURL probes one URL. The provider delay and the global limiter
// run before the request; the circuit breaker runs before everything.
func (v *Validator) CheckURL(ctx context.Context, rawURL string) Result {
	provider := DetectProvider(rawURL)
	result := Result{URL: rawURL, Provider: provider}

	if v.errorCount(provider) >= maxConsecutiveErrors {
		result.Reason = ReasonLimited
		result.Err = fmt.Sprintf("网盘 %s 错误次数过多，暂停检测", provider)

		return result
	}

	if !validFormat(rawURL) {
		result.Reason = ReasonFormat
		result.Err = "URL格式无效"

		return result
	}

	v.delay(ctx, LimitsFor(provider))

	if err := v.limiter.Wait(ctx); err != nil {
		result.Reason = ReasonProbe
		result.Err = err.Error()

		if ctx.Err() == nil {
			v.bumpError(provider)
		}

		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		result.Reason = ReasonFormat
		result.Err = "URL格式无效"

		return result
	}

	req.Header = browserHeaders()

	start := time.Now()

	resp, err := v.client.Do(req)
	if err != nil {
		result.ResponseTime = time.Since(start).Seconds()
		result.Reason, result.Err = classifyTransportError(err)

		// A failure caused by the run being cancelled says nothing
		// about the provider.
		if ctx.Err() == nil {
			v.bumpError(provider)
		}

		return result
	}
	defer resp.Body.Close()

	result.ResponseTime = time.Since(start).Seconds()
	result.StatusCode = resp.StatusCode

	if resp.StatusCode != http.StatusOK {
		result.Reason = ReasonStatus
		result.Err = fmt.Sprintf("HTTP %d", resp.StatusCode)
		v.bumpError(provider)

		return result
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		result.Reason = ReasonProbe
		result.Err = fmt.Sprintf("读取页面失败: %v", err)

		if ctx.Err() == nil {
			v.bumpError(provider)
		}

		return result
	}

	content := string(body)

	for _, p := range providerInvalidPatterns[provider] {
		if p.MatchString(content) {
			result.Reason = ReasonDeadShare
			result.Err = fmt.Sprintf("网盘显示失效: %s", p.String())

			return result
		}
	}

	for _, p := range generalInvalidPatterns {
		if p.MatchString(content) {
			result.Reason = ReasonPageError
			result.Err = fmt.Sprintf("页面显示错误: %s", p.String())

			return result
		}
	}

	result.Valid = true
	result.Reason = ReasonValid
	v.resetError(provider)

	return result
}

func classifyTransportError(err error) (reason, msg string) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout, "请求超时"
	}

	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
		return ReasonTimeout, "请求超时"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ReasonNetwork, fmt.Sprintf("网络错误: %v", urlErr.Err)
	}

	return ReasonProbe, fmt.Sprintf("未知错误: %v", err)
}

// CheckAll probes URLs grouped by provider. Providers run one after
// another; inside a provider a semaphore bounds concurrency to
// min(provider table, maxConcurrent). onResult, when set, fires once
// per finished probe. Cancellation stops new probes from launching;
// URLs that never got probed produce no result at all, so the returned
// slice covers only the work that actually ran.
func (v *Validator) CheckAll(ctx context.Context, urls []string, maxConcurrent int, onResult func(Result)) []Result {
	groups := make(map[string][]string)

	var order []string

	for _, u := range urls {
		p := DetectProvider(u)
		if _, ok := groups[p]; !ok {
			order = append(order, p)
		}

		groups[p] = append(groups[p], u)
	}

	var all []Result

	for _, provider := range order {
		providerURLs := groups[provider]
		limit := LimitsFor(provider).MaxConcurrent

		if maxConcurrent > 0 && maxConcurrent < limit {
			limit = maxConcurrent
		}

		v.logger.Info().
			Str("provider", provider).
			Int("urls", len(providerURLs)).
			Int("concurrency", limit).
			Msg("probing provider")

		results := make([]Result, len(providerURLs))
		probed := make([]bool, len(providerURLs))
		sem := make(chan struct{}, limit)

		var wg sync.WaitGroup

		for i, u := range providerURLs {
			if ctx.Err() != nil {
				break
			}

			wg.Add(1)

			go func(i int, u string) {
				defer wg.Done()

				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					return
				}
				defer func() { <-sem }()

				if ctx.Err() != nil {
					return
				}

				r := v.CheckURL(ctx, u)

				// A probe aborted by cancellation is not an outcome.
				if ctx.Err() != nil && !r.Valid && Retryable(r.Reason) {
					return
				}

				results[i] = r
				probed[i] = true

				if onResult != nil {
					onResult(r)
				}
			}(i, u)
		}

		wg.Wait()

		for i := range results {
			if probed[i] {
				all = append(all, results[i])
			}
		}

		if ctx.Err() != nil {
			return all
		}
	}

	return v.retryFailed(ctx, all)
}

// retryFailed gives retryable failures up to three more attempts with a
// short pause, stopping early on success or a terminal outcome. The new
// outcome replaces the original.
func (v *Validator) retryFailed(ctx context.Context, results []Result) []Result {
	retryIdx := make([]int, 0)

	for i, r := range results {
		if !r.Valid && Retryable(r.Reason) {
			retryIdx = append(retryIdx, i)
		}
	}

	if len(retryIdx) == 0 {
		return results
	}

	v.logger.Info().Int("urls", len(retryIdx)).Msg("retrying failed probes")

	for _, i := range retryIdx {
		if ctx.Err() != nil {
			return results
		}

		for attempt := 1; attempt <= maxRetries; attempt++ {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(v.pause):
			}

			r := v.CheckURL(ctx, results[i].URL)
			results[i] = r

			if r.Valid || !Retryable(r.Reason) {
				break
			}
		}
	}

	return results
}

// Summarize folds probe results into per-provider totals.
func Summarize(results []Result) (valid, invalid int, perProvider map[string]domain.ProviderStat) {
	perProvider = make(map[string]domain.ProviderStat)

	for _, r := range results {
		stat := perProvider[r.Provider]
		stat.Total++

		if r.Valid {
			valid++
			stat.Valid++
		} else {
			invalid++
			stat.Invalid++
		}

		perProvider[r.Provider] = stat
	}

	return valid, invalid, perProvider
}
