// Package pdfgen writes simple text PDFs, used for sample data and test fixtures.
package pdfgen

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"
)

// Doc is a PDF to generate: a title and the text of each page.
type Doc struct {
	FileName string
	Title    string
	Pages    []string
}

// WriteFile renders doc to path with one PDF page per entry of doc.Pages.
// Each paragraph is written on its own lines in a core font.
func WriteFile(path string, doc Doc) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(doc.Title, true)
	pdf.SetAutoPageBreak(false, 15)

	for i, text := range doc.Pages {
		pdf.AddPage()
		if i == 0 && doc.Title != "" {
			pdf.SetFont("Helvetica", "B", 16)
			pdf.MultiCell(0, 10, doc.Title, "", "L", false)
			pdf.Ln(4)
		}
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, text, "", "L", false)
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("rendering %s: %w", doc.FileName, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return pdf.OutputFileAndClose(path)
}

// WriteCorpus writes docs into dir and returns the written paths.
func WriteCorpus(dir string, docs []Doc) ([]string, error) {
	paths := make([]string, 0, len(docs))
	for _, d := range docs {
		path := filepath.Join(dir, d.FileName)
		if err := WriteFile(path, d); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// SampleCorpus is a small set of AI/ML documents for local development.
func SampleCorpus() []Doc {
	return []Doc{
		{
			FileName: "ml_guide.pdf",
			Title:    "A Short Guide to Machine Learning",
			Pages: []string{
				"Machine learning is a subset of artificial intelligence that enables computers to learn from data without being explicitly programmed. " +
					"Instead of following hand written rules, a model finds patterns in examples and uses them to make predictions.",
				"Supervised learning trains a model on labeled examples, such as emails marked as spam or not spam. " +
					"Unsupervised learning looks for structure in unlabeled data, for example by clustering similar customers. " +
					"Reinforcement learning trains an agent through rewards and penalties.",
				"A model is evaluated on data it has not seen during training. " +
					"Overfitting happens when a model memorizes the training set and fails to generalize to new inputs.",
			},
		},
		{
			FileName: "neural_networks.pdf",
			Title:    "Neural Networks Primer",
			Pages: []string{
				"Neural networks are computing systems inspired by the biological neural networks of the brain. " +
					"They are built from layers of connected units called neurons, and each connection has a weight.",
				"Deep learning uses neural networks with many layers. " +
					"Training adjusts the weights with backpropagation and gradient descent so that the error on the training data decreases.",
			},
		},
		{
			FileName: "data_science.pdf",
			Title:    "Notes on Data Science",
			Pages: []string{
				"Data science combines statistics, programming and domain knowledge to extract insight from data. " +
					"A typical project starts with collecting and cleaning data, followed by exploratory analysis and visualization.",
				"Feature engineering turns raw data into inputs a model can use. " +
					"Good features often matter more than the choice of algorithm.",
			},
		},
	}
}
