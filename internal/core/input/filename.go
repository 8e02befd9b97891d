package input

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/nccgroup/scrying/internal/core/model"
)

const maxNameLength = 200

// sanitize 把路径非法字符替换为下划线，只保留 [A-Za-z0-9._-]
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// BaseName 目标对应的文件名 (不含扩展名和目录)
//
//	rdp/vnc: 192.0.2.45-3389, 2001_db8__1-3389
//	web:     http_example.com_8443-this-is-a-path
func BaseName(t model.Target) string {
	var name string
	if t.Protocol != model.ProtocolWeb {
		name = sanitize(t.Host) + "-" + strconv.Itoa(t.Port)
	} else {
		var b strings.Builder
		b.WriteString(sanitize(t.Scheme))
		b.WriteString("_")
		b.WriteString(sanitize(t.Host))
		if !t.HasDefaultPort() {
			b.WriteString("_")
			b.WriteString(strconv.Itoa(t.Port))
		}
		if t.Path != "" && t.Path != "/" {
			segments := strings.Split(t.Path, "/")
			for i := range segments {
				segments[i] = sanitize(segments[i])
			}
			b.WriteString(strings.TrimRight(strings.Join(segments, "-"), "-"))
		}
		name = b.String()
	}

	if len(name) > maxNameLength {
		sum := sha1.Sum([]byte(name))
		name = name[:maxNameLength-9] + "-" + hex.EncodeToString(sum[:4])
	}
	return name
}

// OutputPath <root>/<protocol>/<name>.png
func OutputPath(root string, t model.Target) string {
	return filepath.Join(root, string(t.Protocol), BaseName(t)+".png")
}

// ArtifactNamer 为一次运行中的每个目标分配唯一输出路径
// sanitize 不是单射 (例如 /a?b 与 /a_b)，冲突时追加 -2、-3 ...
type ArtifactNamer struct {
	root string
	mu   sync.Mutex
	used map[string]model.TargetKey
}

func NewArtifactNamer(root string) *ArtifactNamer {
	return &ArtifactNamer{
		root: root,
		used: make(map[string]model.TargetKey),
	}
}

// Assign 返回目标的输出路径，同一目标重复调用返回相同结果
func (n *ArtifactNamer) Assign(t model.Target) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := t.Key()
	base := OutputPath(n.root, t)
	candidate := base
	for i := 2; ; i++ {
		// 大小写不敏感的文件系统上也不能冲突
		folded := strings.ToLower(candidate)
		owner, taken := n.used[folded]
		if !taken {
			n.used[folded] = key
			return candidate
		}
		if owner == key {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d.png", strings.TrimSuffix(base, ".png"), i)
	}
}
