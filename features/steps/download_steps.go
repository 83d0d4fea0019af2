//go:build integration

package steps

import (
	"fmt"
	"os"
	"time"

	"github.com/cucumber/godog"
)

const clipBody = "clip-video"

func InitializeDownloadScenario(ctx *godog.ScenarioContext) {
	ctx.Step(`^the download grace period is (\d+) milliseconds$`, theDownloadGracePeriodIs)
	ctx.Step(`^a clip "([^"]*)" exists in storage$`, aClipExistsInStorage)
	ctx.Step(`^I download "([^"]*)"$`, iDownload)
	ctx.Step(`^I follow the download URL$`, iFollowTheDownloadURL)
	ctx.Step(`^the response body should be the clip$`, theResponseBodyShouldBeTheClip)
	ctx.Step(`^"([^"]*)" should still be in storage$`, shouldStillBeInStorage)
	ctx.Step(`^"([^"]*)" should be removed within (\d+) seconds?$`, shouldBeRemovedWithin)
	ctx.Step(`^exactly (\d+) deletions? should be pending$`, exactlyDeletionsShouldBePending)
}

func theDownloadGracePeriodIs(ms int) error {
	s := getServer()
	s.cfg.DownloadGrace = time.Duration(ms) * time.Millisecond
	s.rebuildRouter()
	return nil
}

func aClipExistsInStorage(name string) error {
	return os.WriteFile(getServer().store.ArtifactPath(name), []byte(clipBody), 0644)
}

func iDownload(name string) error {
	getServer().do("GET", "/download/"+name, "")
	return nil
}

func iFollowTheDownloadURL() error {
	s := getServer()
	if s.lastClip.DownloadURL == "" {
		return fmt.Errorf("no download URL from a previous clip request")
	}
	s.do("GET", s.lastClip.DownloadURL, "")
	return nil
}

func theResponseBodyShouldBeTheClip() error {
	if got := getServer().response.Body.String(); got != clipBody {
		return fmt.Errorf("expected body %q, got %q", clipBody, got)
	}
	return nil
}

func shouldStillBeInStorage(name string) error {
	if _, err := os.Stat(getServer().store.ArtifactPath(name)); err != nil {
		return fmt.Errorf("expected %s in storage: %w", name, err)
	}
	return nil
}

func shouldBeRemovedWithin(name string, seconds int) error {
	path := getServer().store.ArtifactPath(name)
	deadline := time.Now().Add(time.Duration(seconds) * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("%s was not removed within %ds", name, seconds)
}

func exactlyDeletionsShouldBePending(n int) error {
	if got := getServer().scheduler.Len(); got != n {
		return fmt.Errorf("expected %d pending deletions, got %d", n, got)
	}
	return nil
}
