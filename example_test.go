package artifactkit_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobeaver/artifactkit"
	"github.com/gobeaver/artifactkit/driver/memory"
)

func ExamplePublish() {
	work, _ := os.MkdirTemp("", "example")
	defer os.RemoveAll(work)
	_ = os.MkdirAll(filepath.Join(work, "build", "outputs"), 0o755)
	_ = os.WriteFile(filepath.Join(work, "build", "outputs", "release.aab"), []byte("bundle"), 0o644)

	store := memory.New()
	res, err := artifactkit.Publish(context.Background(), store, artifactkit.PublishRequest{
		Source:     "build/outputs/%.aab",
		WorkingDir: work,
		Target:     "android/$BUILD/$1.aab",
		Params:     map[string]string{"BUILD": "1042"},
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(res.Metadata()["Location"])
	fmt.Println(store.Paths())
	// Output:
	// android/1042/release.aab
	// [android/1042/release.aab]
}

func ExampleListWithSelector() {
	ctx := context.Background()
	store := memory.New()
	for _, p := range []string{"ios/7/App.ipa", "ios/7/App.dSYM.zip", "ios/8/App.ipa"} {
		_ = store.Write(ctx, p, strings.NewReader("x"))
	}

	files, _ := artifactkit.ListWithSelector(ctx, store, "ios", artifactkit.MustGlob("*.ipa"), true)
	for _, f := range files {
		fmt.Println(f.Path)
	}
	// Output:
	// ios/7/App.ipa
	// ios/8/App.ipa
}

func ExampleNewReadOnlyFileSystem() {
	store := artifactkit.NewReadOnlyFileSystem(memory.New())

	err := store.Write(context.Background(), "a.txt", strings.NewReader("x"))
	fmt.Println(artifactkit.IsReadOnlyError(err))
	// Output: true
}

func ExampleIsNotExist() {
	_, err := memory.New().Stat(context.Background(), "missing.apk")
	fmt.Println(artifactkit.IsNotExist(err))

	var pe *artifactkit.PathError
	fmt.Println(errors.As(err, &pe))
	// Output:
	// true
	// true
}
