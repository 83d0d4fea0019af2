//go:build integration

package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"
)

func InitializeClipScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		SharedServer = nil
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if s := getServer(); s != nil {
			s.close()
		}
		SharedServer = nil
		return c, nil
	})

	ctx.Step(`^a running clip server$`, aRunningClipServer)
	ctx.Step(`^ffmpeg fails with "([^"]*)"$`, ffmpegFailsWith)
	ctx.Step(`^I request a clip of "([^"]*)" from (-?\d+) to (-?\d+)$`, iRequestAClipOfFromTo)
	ctx.Step(`^the response status should be (\d+)$`, theResponseStatusShouldBe)
	ctx.Step(`^the download URL should be "([^"]*)"$`, theDownloadURLShouldBe)
	ctx.Step(`^the warning should be "([^"]*)"$`, theWarningShouldBe)
	ctx.Step(`^the error detail should be "([^"]*)"$`, theErrorDetailShouldBe)
	ctx.Step(`^the error detail should mention "([^"]*)"$`, theErrorDetailShouldMention)
	ctx.Step(`^no source files should remain in storage$`, noSourceFilesShouldRemainInStorage)
	ctx.Step(`^ffmpeg should have cut from "([^"]*)" to "([^"]*)"$`, ffmpegShouldHaveCutFromTo)
	ctx.Step(`^storage should hold exactly (\d+) clips?$`, storageShouldHoldExactlyClips)
	ctx.Step(`^the downloader should not have been called$`, theDownloaderShouldNotHaveBeenCalled)
}

func aRunningClipServer() error {
	root, err := os.MkdirTemp("", "backendyt_features_")
	if err != nil {
		return err
	}
	s, err := newServerContext(root)
	if err != nil {
		return err
	}
	SharedServer = s
	return nil
}

func ffmpegFailsWith(stderr string) error {
	s := getServer()
	s.backend.mu.Lock()
	s.backend.ffFail = stderr
	s.backend.mu.Unlock()
	return nil
}

func iRequestAClipOfFromTo(url string, start, end int) error {
	s := getServer()
	body := fmt.Sprintf(`{"url": %q, "start": %d, "end": %d}`, url, start, end)
	s.do("POST", "/clip", body)

	if s.response.Code == 200 {
		if err := json.Unmarshal(s.response.Body.Bytes(), &s.lastClip); err != nil {
			return fmt.Errorf("could not decode clip response: %w", err)
		}
	}
	return nil
}

func theResponseStatusShouldBe(code int) error {
	s := getServer()
	if s.response.Code != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, s.response.Code, s.response.Body.String())
	}
	return nil
}

func theDownloadURLShouldBe(expected string) error {
	if got := getServer().lastClip.DownloadURL; got != expected {
		return fmt.Errorf("expected download URL %q, got %q", expected, got)
	}
	return nil
}

func theWarningShouldBe(expected string) error {
	if got := getServer().lastClip.Warning; got != expected {
		return fmt.Errorf("expected warning %q, got %q", expected, got)
	}
	return nil
}

func errorDetail() (string, error) {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(getServer().response.Body.Bytes(), &body); err != nil {
		return "", fmt.Errorf("response is not an error body: %w", err)
	}
	return body.Detail, nil
}

func theErrorDetailShouldBe(expected string) error {
	detail, err := errorDetail()
	if err != nil {
		return err
	}
	if detail != expected {
		return fmt.Errorf("expected detail %q, got %q", expected, detail)
	}
	return nil
}

func theErrorDetailShouldMention(fragment string) error {
	detail, err := errorDetail()
	if err != nil {
		return err
	}
	if !strings.Contains(detail, fragment) {
		return fmt.Errorf("expected detail to mention %q, got %q", fragment, detail)
	}
	return nil
}

func noSourceFilesShouldRemainInStorage() error {
	staging := filepath.Join(getServer().store.Root(), ".staging")
	entries, err := os.ReadDir(staging)
	if err != nil {
		return err
	}
	if len(entries) != 0 {
		return fmt.Errorf("expected empty staging area, found %d entries", len(entries))
	}
	return nil
}

func ffmpegShouldHaveCutFromTo(start, end string) error {
	s := getServer()
	s.backend.mu.Lock()
	args := strings.Join(s.backend.ffArgs, " ")
	s.backend.mu.Unlock()

	want := fmt.Sprintf("-ss %s -to %s", start, end)
	if !strings.Contains(args, want) {
		return fmt.Errorf("expected ffmpeg args to contain %q, got %q", want, args)
	}
	return nil
}

func storageShouldHoldExactlyClips(n int) error {
	files, err := getServer().files()
	if err != nil {
		return err
	}
	if len(files) != n {
		return fmt.Errorf("expected %d clips in storage, found %v", n, files)
	}
	return nil
}

func theDownloaderShouldNotHaveBeenCalled() error {
	s := getServer()
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if s.backend.ytCalls != 0 {
		return fmt.Errorf("expected no downloads, got %d", s.backend.ytCalls)
	}
	return nil
}
