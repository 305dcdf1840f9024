package results

import (
	"encoding/xml"
	"fmt"

	"github.com/tedsuo/fitmesh/fit"
	"github.com/tedsuo/fitmesh/jobspec"
)

type modelDocument struct {
	XMLName    xml.Name      `xml:"model"`
	Analysis   string        `xml:"analysis,attr"`
	Run        string        `xml:"run,attr"`
	Group      int           `xml:"group,attr"`
	Meniscus   float64       `xml:"meniscus,attr"`
	Alpha      float64       `xml:"alpha,attr"`
	Iterations int           `xml:"iterations,attr"`
	Variance   float64       `xml:"variance,attr"`
	RMSD       float64       `xml:"rmsd,attr"`
	Stopped    bool          `xml:"stopped,attr,omitempty"`
	Resumed    bool          `xml:"resumed,attr,omitempty"`
	Solutes    []soluteEntry `xml:"solute"`
}

type soluteEntry struct {
	Index    int     `xml:"index,attr"`
	Bucket   int     `xml:"bucket,attr"`
	S        float64 `xml:"s,attr"`
	K        float64 `xml:"k,attr"`
	EndS     float64 `xml:"end_s,attr,omitempty"`
	EndK     float64 `xml:"end_k,attr,omitempty"`
	Variance float64 `xml:"variance,attr"`
}

// ModelFile names the model file of a run: <analysis>.<runid>.model.xml.
func ModelFile(analysis jobspec.AnalysisType, run fit.Run) string {
	return fmt.Sprintf("%s.%s.model.xml", analysis, run.ID())
}

func newModelDocument(analysis jobspec.AnalysisType, result fit.RunResult) modelDocument {
	doc := modelDocument{
		Analysis:   string(analysis),
		Run:        result.Run.ID(),
		Group:      result.Group,
		Meniscus:   result.Run.Meniscus,
		Alpha:      result.Alpha,
		Iterations: result.Iterations,
		Variance:   result.Variance,
		RMSD:       result.RMSD,
		Stopped:    result.Stopped,
		Resumed:    result.Resumed,
	}
	for _, solute := range result.Model {
		doc.Solutes = append(doc.Solutes, soluteEntry{
			Index:    solute.Index,
			Bucket:   solute.Bucket,
			S:        solute.S,
			K:        solute.K,
			EndS:     solute.EndS,
			EndK:     solute.EndK,
			Variance: solute.Variance,
		})
	}
	return doc
}
