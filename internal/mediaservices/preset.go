package mediaservices

import (
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/mediaservices/armmediaservices/v3"
)

// TransformDescription is stored on transforms created by CreateTransform.
const TransformDescription = "A simple custom encoding transform with overlay"

const (
	keyFrameInterval = "PT2S"
	layerBitrate     = 1000000
	layerWidth       = "1140"
	layerHeight      = "640"
	filenamePattern  = "{Basename}_{Bitrate}{Extension}"
)

// overlayTransformOutputs is the fixed recipe: AAC audio, one baseline H.264
// layer, MP4 output and a video overlay fed by the input carrying label.
func overlayTransformOutputs(label string) []*armmediaservices.TransformOutput {
	return []*armmediaservices.TransformOutput{{
		Preset: &armmediaservices.StandardEncoderPreset{
			ODataType: to.Ptr("#Microsoft.Media.StandardEncoderPreset"),
			Filters: &armmediaservices.Filters{
				Overlays: []armmediaservices.OverlayClassification{
					&armmediaservices.VideoOverlay{
						ODataType:  to.Ptr("#Microsoft.Media.VideoOverlay"),
						InputLabel: to.Ptr(label),
					},
				},
			},
			Codecs: []armmediaservices.CodecClassification{
				&armmediaservices.AacAudio{
					ODataType: to.Ptr("#Microsoft.Media.AacAudio"),
				},
				&armmediaservices.H264Video{
					ODataType:        to.Ptr("#Microsoft.Media.H264Video"),
					KeyFrameInterval: to.Ptr(keyFrameInterval),
					Layers: []*armmediaservices.H264Layer{{
						Profile: to.Ptr(armmediaservices.H264VideoProfileBaseline),
						Bitrate: to.Ptr[int32](layerBitrate),
						Width:   to.Ptr(layerWidth),
						Height:  to.Ptr(layerHeight),
					}},
				},
			},
			Formats: []armmediaservices.FormatClassification{
				&armmediaservices.Mp4Format{
					ODataType:       to.Ptr("#Microsoft.Media.Mp4Format"),
					FilenamePattern: to.Ptr(filenamePattern),
				},
			},
		},
	}}
}
