package mediaservices

import (
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/mediaservices/armmediaservices/v3"

	"overlayvideos/internal/jobs"
)

func newJob(inputs []jobs.Input, outputAsset string, correlation map[string]string) armmediaservices.Job {
	jobInputs := make([]armmediaservices.JobInputClassification, 0, len(inputs))
	for _, in := range inputs {
		asset := &armmediaservices.JobInputAsset{
			ODataType: to.Ptr("#Microsoft.Media.JobInputAsset"),
			AssetName: to.Ptr(in.AssetName),
		}
		if in.Label != "" {
			asset.Label = to.Ptr(in.Label)
		}
		jobInputs = append(jobInputs, asset)
	}

	var data map[string]*string
	if len(correlation) > 0 {
		data = make(map[string]*string, len(correlation))
		for k, v := range correlation {
			data[k] = to.Ptr(v)
		}
	}

	return armmediaservices.Job{
		Properties: &armmediaservices.JobProperties{
			Input: &armmediaservices.JobInputs{
				ODataType: to.Ptr("#Microsoft.Media.JobInputs"),
				Inputs:    jobInputs,
			},
			Outputs: []armmediaservices.JobOutputClassification{
				&armmediaservices.JobOutputAsset{
					ODataType: to.Ptr("#Microsoft.Media.JobOutputAsset"),
					AssetName: to.Ptr(outputAsset),
				},
			},
			CorrelationData: data,
		},
	}
}

func toTransform(t armmediaservices.Transform) jobs.Transform {
	out := jobs.Transform{Name: deref(t.Name)}
	if t.Properties != nil {
		out.Description = deref(t.Properties.Description)
	}
	return out
}

func toJob(j armmediaservices.Job) jobs.Job {
	out := jobs.Job{Name: deref(j.Name)}
	p := j.Properties
	if p == nil {
		return out
	}
	if p.State != nil {
		out.State = jobs.State(*p.State)
	}
	if len(p.CorrelationData) > 0 {
		out.CorrelationData = make(map[string]string, len(p.CorrelationData))
		for k, v := range p.CorrelationData {
			out.CorrelationData[k] = deref(v)
		}
	}
	for _, o := range p.Outputs {
		if o == nil {
			continue
		}
		out.Outputs = append(out.Outputs, toOutput(o))
	}
	return out
}

func toOutput(o armmediaservices.JobOutputClassification) jobs.Output {
	var out jobs.Output
	if asset, ok := o.(*armmediaservices.JobOutputAsset); ok {
		out.AssetName = deref(asset.AssetName)
	}
	base := o.GetJobOutput()
	if base == nil {
		return out
	}
	if base.State != nil {
		out.State = jobs.State(*base.State)
	}
	if base.Progress != nil {
		out.Progress = int(*base.Progress)
	}
	if e := base.Error; e != nil {
		je := &jobs.Error{Message: deref(e.Message)}
		if e.Code != nil {
			je.Code = string(*e.Code)
		}
		for _, d := range e.Details {
			if d == nil {
				continue
			}
			je.Details = append(je.Details, jobs.ErrorDetail{Code: deref(d.Code), Message: deref(d.Message)})
		}
		out.Error = je
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
