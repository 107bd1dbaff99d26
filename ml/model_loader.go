package ml

import (
	"errors"
)

// LoadModel loads a trained model of the given type from path.
func LoadModel(modelType, path string) (Model, error) {
	switch modelType {
	case "linear":
		model := &LinearModel{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, errors.New("unsupported model type")
	}
}
