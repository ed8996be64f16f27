// Package jobspec builds the operation list a render node executes for a
// job. Strings containing {braced} tokens are templates the node expands
// at runtime; they must be passed through verbatim.
package jobspec

import (
	"fmt"
	"strconv"
)

// Operation is one step of a node's per-task pipeline.
type Operation struct {
	Operation string         `json:"operation"`
	Arguments map[string]any `json:"arguments"`
	Variables []string       `json:"variables,omitempty"`
}

// Params carries everything the pipeline needs that is not a node-side
// template variable.
type Params struct {
	BlendFileName    string
	RenderFormat     string
	MaxThumbnailSize int
	ArchiveHash      string
	FrameStep        int64
	APIToken         string
	R2Endpoint       string
}

// listInputScript prints the unpacked input tree so node logs show what
// the archive contained. Only template tokens may appear in braces; the
// node expands every braced token it finds.
const listInputScript = `import os
folder = "{node_folder}/{job_id}/input/"
for root, dirs, files in os.walk(folder):
    level = root.replace(folder, "").count(os.sep)
    indent = "  " * level
    print(indent + os.path.basename(root) + "/")
    for f in files:
        print(indent + "  -" + f)
`

func stopwatch(action, name string) Operation {
	return Operation{
		Operation: "stopwatch",
		Arguments: map[string]any{
			"action": action,
			"name":   name,
		},
	}
}

func downloadUnzip(archiveHash, apiToken, r2Endpoint string) Operation {
	return Operation{
		Operation: "exe",
		Arguments: map[string]any{"input": "python", "one_shot": true},
		Variables: []string{
			"assets/scripts/files/unzip.py",
			"--zip",
			"{node_folder}/{job_id}/input/package.zip",
			"--extract-folder",
			"{node_folder}/{job_id}/input/",
			"--url",
			fmt.Sprintf("%s/{job_id}/input/package.zip?octa_api_token=%s", r2Endpoint, apiToken),
			"--hash",
			archiveHash,
			"--dont-ensure-exists",
		},
	}
}

func printInputFolder() Operation {
	return Operation{
		Operation: "exe",
		Arguments: map[string]any{"input": "python"},
		Variables: []string{"-c", listInputScript},
	}
}

func blender(blendFileName, renderFormat string, frameStep int64) Operation {
	frameStart := "{job_start + (node_task-job_start) * job_batch_size}"
	frameEnd := "{job_start + (node_task-job_start+1) * job_batch_size - 1}"
	if frameStep > 1 {
		frameStart = "{job_start + ((node_task - job_start) * job_frame_step)}"
		frameEnd = frameStart
	}

	return Operation{
		Operation: "exe",
		Arguments: map[string]any{"input": `{eval(f"node_{job_blender_version}")}`},
		Variables: []string{
			"-b",
			"{node_folder}/{job_id}/input/" + blendFileName,
			"-y",
			"-s",
			frameStart,
			"-e",
			frameEnd,
			"-F",
			renderFormat,
			"-o",
			`{node_folder}/{job_id}/{str(node_gpu_index).replace(",", "_")}/output/`,
			"-P",
			"/srv/sarfis-pro-node/assets/scripts/blender/octa.py",
			"-a",
			"--",
			"-enable_devices",
			`[{str(node_gpu_index).replace(",", "_")}]`,
		},
	}
}

func thumbnails(maxSize int) Operation {
	return Operation{
		Operation: "exe",
		Arguments: map[string]any{"input": "python"},
		Variables: []string{
			"assets/scripts/files/thumbnails.py",
			"-path",
			`{node_folder}/{job_id}/{str(node_gpu_index).replace(",", "_")}/output/`,
			"-size",
			strconv.Itoa(maxSize),
		},
	}
}

func r2Upload(apiToken string) Operation {
	return Operation{
		Operation: "exe",
		Arguments: map[string]any{"input": "python"},
		Variables: []string{
			"assets/scripts/files/octa_r2_upload.py",
			"--folder",
			`{node_folder}/{job_id}/{str(node_gpu_index).replace(",", "_")}/output/`,
			"--remote-path",
			"{job_id}/output/",
			"--api-token",
			apiToken,
			"--remove-files",
		},
	}
}

func analytics(frame, duration string) Operation {
	return Operation{
		Operation: "octa_analytics",
		Arguments: map[string]any{
			"frame":    frame,
			"duration": duration,
		},
	}
}

// Operations assembles the full per-task pipeline: time the frame, fetch
// and unpack the archive, render, thumbnail, push outputs back, report.
func Operations(p Params) []Operation {
	return []Operation{
		stopwatch("start", "frame"),
		downloadUnzip(p.ArchiveHash, p.APIToken, p.R2Endpoint),
		printInputFolder(),
		blender(p.BlendFileName, p.RenderFormat, p.FrameStep),
		thumbnails(p.MaxThumbnailSize),
		r2Upload(p.APIToken),
		stopwatch("stop", "frame"),
		analytics("{node_task}", "{stopwatch_frame}"),
	}
}
