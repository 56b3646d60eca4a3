package spider

import (
	"fmt"
	"math/rand/v2"
	"net/http"
)

var chromeVersions = []string{"120", "121", "122"}

// browserHeaders builds a randomized Chrome-like header set. Sites gating on
// header fingerprints see a plausible browser with the referer pointing at
// their own front page.
func browserHeaders(host string) http.Header {
	v := chromeVersions[rand.IntN(len(chromeVersions))]
	h := http.Header{}
	h.Set("User-Agent", fmt.Sprintf(
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s.0.0.0 Safari/537.36", v))
	h.Set("Sec-Ch-Ua", fmt.Sprintf(`"Not_A Brand";v="8", "Chromium";v="%s", "Google Chrome";v="%s"`, v, v))
	h.Set("Accept-Language", "zh-CN,zh;q=0.9")
	h.Set("Connection", "keep-alive")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Upgrade-Insecure-Requests", "1")
	if host != "" {
		h.Set("Referer", "https://"+host+"/")
	}
	return h
}
