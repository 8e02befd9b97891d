// 版本信息，BuildTime 与 GitCommit 通过 -ldflags 注入
// go build -ldflags "-X github.com/nccgroup/scrying/internal/pkg/version.GitCommit=$(git rev-parse --short HEAD)"

package version

import "runtime"

var (
	Version   = "0.9.0" // 版本号 -- 发布时候更新版本号
	BuildTime string
	GitCommit string
	GoVersion = runtime.Version()
)

func GetVersion() string {
	return Version
}

// GetFullVersion 版本号加提交信息
func GetFullVersion() string {
	if GitCommit == "" {
		return Version
	}
	return Version + "+" + GitCommit
}

// GetUserAgent Web 截图使用的 UA
func GetUserAgent() string {
	return "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 scrying/" + Version
}
