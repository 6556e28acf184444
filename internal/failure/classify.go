// Package failure classifies AWS API errors and aggregates them per profile.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
)

// Kind is the category of a classified failure.
type Kind string

const (
	// KindCredentialExpired means the session or token is expired or invalid.
	KindCredentialExpired Kind = "credential_expired"
	// KindAccessDenied means the credentials lack permission.
	KindAccessDenied Kind = "access_denied"
	// KindThrottled means the API rate limited the caller.
	KindThrottled Kind = "throttled"
	// KindTransient means a connectivity or server-side problem.
	KindTransient Kind = "transient"
	// KindUnknown is anything unrecognized.
	KindUnknown Kind = "unknown"
)

// Retryable reports whether retrying can succeed.
func (k Kind) Retryable() bool {
	return k == KindThrottled || k == KindTransient
}

// ErrMalformedRecord is returned when an API record cannot be normalized.
var ErrMalformedRecord = errors.New("malformed api record")

// Classification is the outcome of Classify.
type Classification struct {
	Kind      Kind
	Code      string // API error code, if any
	Message   string
	Retryable bool
}

var expiredCodes = map[string]bool{
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
	"InvalidClientTokenId":        true,
	"UnrecognizedClientException": true,
	"RequestExpired":              true,
	"InvalidToken":                true,
	"TokenRefreshRequired":        true,
	"UnauthorizedException":       true,
}

var deniedCodes = map[string]bool{
	"AccessDenied":                        true,
	"AccessDeniedException":               true,
	"UnauthorizedOperation":               true,
	"AuthorizationError":                  true,
	"AuthFailure":                         true,
	"OptInRequired":                       true,
	"InvalidParameterValue.NotAuthorized": true,
}

var throttleCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"ThrottledException":                     true,
	"RequestLimitExceeded":                   true,
	"TooManyRequestsException":               true,
	"RequestThrottled":                       true,
	"RequestThrottledException":              true,
	"SlowDown":                               true,
	"ProvisionedThroughputExceededException": true,
}

var transientCodes = map[string]bool{
	"RequestTimeout":              true,
	"RequestTimeoutException":     true,
	"InternalError":               true,
	"InternalFailure":             true,
	"ServiceUnavailable":          true,
	"ServiceUnavailableException": true,
}

var expiredPhrases = []string{
	"expired",
	"invalid client token",
	"security token included in the request is invalid",
	"failed to refresh cached credentials",
	"no valid credential sources",
	"sso session",
}

var transientPhrases = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"tls handshake timeout",
	"broken pipe",
	"unexpected eof",
}

// Classify maps an error to a failure kind. It never returns a zero Kind.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindUnknown}
	}
	c := Classification{Kind: KindUnknown, Message: err.Error()}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		c.Code = apiErr.ErrorCode()
		switch {
		case expiredCodes[c.Code]:
			c.Kind = KindCredentialExpired
		case deniedCodes[c.Code]:
			c.Kind = KindAccessDenied
		case throttleCodes[c.Code]:
			c.Kind = KindThrottled
		case transientCodes[c.Code]:
			c.Kind = KindTransient
		}
	}

	if c.Kind == KindUnknown {
		c.Kind = classifyStatus(err)
	}
	if c.Kind == KindUnknown {
		c.Kind = classifyNetwork(err)
	}
	// Message heuristics only cover errors that carry no API code.
	if c.Kind == KindUnknown && c.Code == "" && !errors.Is(err, ErrMalformedRecord) {
		c.Kind = classifyMessage(c.Message)
	}

	c.Retryable = c.Kind.Retryable()
	return c
}

func classifyStatus(err error) Kind {
	var respErr *awshttp.ResponseError
	if !errors.As(err, &respErr) {
		return KindUnknown
	}
	switch status := respErr.HTTPStatusCode(); {
	case status == 403:
		return KindAccessDenied
	case status == 429:
		return KindThrottled
	case status >= 500:
		return KindTransient
	}
	return KindUnknown
}

func classifyNetwork(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindTransient
	}
	return KindUnknown
}

func classifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	for _, p := range expiredPhrases {
		if strings.Contains(lower, p) {
			return KindCredentialExpired
		}
	}
	if strings.Contains(lower, "access denied") || strings.Contains(lower, "not authorized") {
		return KindAccessDenied
	}
	if strings.Contains(lower, "rate exceeded") || strings.Contains(lower, "throttl") {
		return KindThrottled
	}
	for _, p := range transientPhrases {
		if strings.Contains(lower, p) {
			return KindTransient
		}
	}
	return KindUnknown
}

// Guidance returns the user-actionable message for a failure.
func Guidance(kind Kind, profile, message string) string {
	switch kind {
	case KindCredentialExpired:
		return fmt.Sprintf("AWS session for profile %s appears invalid or expired. "+
			"Run 'aws sso login --profile %s' or refresh the credentials and scan again.", profile, profile)
	case KindAccessDenied:
		return fmt.Sprintf("Profile %s is not authorized. Review its IAM permissions for "+
			"elasticache:DescribeCacheClusters, elasticache:DescribeReplicationGroups, "+
			"elasticache:ListTagsForResource and sts:GetCallerIdentity.", profile)
	case KindThrottled:
		return fmt.Sprintf("Profile %s was throttled by the API after retries. "+
			"Lower parallel_profiles or requests_per_second and scan again.", profile)
	case KindTransient:
		return fmt.Sprintf("Profile %s hit network or service errors after retries. "+
			"Check connectivity to the AWS endpoints and scan again.", profile)
	default:
		return fmt.Sprintf("Profile %s failed with an unrecognized error: %s", profile, message)
	}
}
