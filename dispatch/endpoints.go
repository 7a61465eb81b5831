package dispatch

import (
	"fmt"
	"net/url"

	"github.com/chainsignal/core/store"
)

// endpointFor maps a task type and payload to the runtime-relative
// endpoint path the adapter will call against baseUrl/proxyUrl.
func endpointFor(taskType store.TaskType, payload map[string]string) (string, error) {
	switch taskType {
	case store.TaskSearch:
		return fmt.Sprintf("/search/%s", url.PathEscape(payload["query"])), nil
	case store.TaskAccountTweets:
		return fmt.Sprintf("/tweets/%s", url.PathEscape(payload["username"])), nil
	case store.TaskAccountFollowers:
		return fmt.Sprintf("/account/%s/followers", url.PathEscape(payload["username"])), nil
	default:
		return "", fmt.Errorf("dispatch: unrecognized task type %q", taskType)
	}
}
